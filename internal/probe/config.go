// Package probe drives a running query backend with sample questions and
// claims and checks the shape of every answer.
package probe

import "time"

// Config holds configuration for a probe run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Rounds     int           // How many times each case is sent
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Output file for results
	Verbose    bool          // Log every response
}

// Endpoint names the route a case is sent to.
type Endpoint string

const (
	EndpointQuery    Endpoint = "/query"
	EndpointDecision Endpoint = "/claim-decision"
	EndpointChat     Endpoint = "/chat"
)

// Case is one request the probe sends.
type Case struct {
	Name     string   `json:"name"`
	Endpoint Endpoint `json:"endpoint"`
	Body     any      `json:"body"`
}

// Result records the outcome of one request.
type Result struct {
	Case       string        `json:"case"`
	Round      int           `json:"round"`
	Endpoint   Endpoint      `json:"endpoint"`
	StatusCode int           `json:"status_code"`
	Latency    time.Duration `json:"latency_ns"`
	Valid      bool          `json:"valid"`
	Error      string        `json:"error,omitempty"`
	Summary    string        `json:"summary,omitempty"`
}

// Stats holds run statistics.
type Stats struct {
	Sent       int
	Valid      int
	Invalid    int
	Failed     int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	MaxLatency time.Duration
}

// DefaultCases are the questions and claims sent when none are given.
func DefaultCases() []Case {
	return []Case{
		{
			Name:     "coverage_question",
			Endpoint: EndpointQuery,
			Body:     map[string]string{"question": "I'm a 46-year-old male needing knee surgery in Pune. Does my 3-month policy cover this?"},
		},
		{
			Name:     "exclusion_question",
			Endpoint: EndpointQuery,
			Body:     map[string]string{"question": "What are the exclusions for dental procedures?"},
		},
		{
			Name:     "maternity_question",
			Endpoint: EndpointQuery,
			Body:     map[string]string{"question": "Can I claim maternity benefits after 2 years of policy?"},
		},
		{
			Name:     "knee_claim",
			Endpoint: EndpointDecision,
			Body: map[string]any{
				"query": "46-year-old male needs knee surgery in Pune with 3 months policy duration",
				"patient_data": map[string]string{
					"age":       "46",
					"gender":    "M",
					"procedure": "knee surgery",
					"location":  "Pune",
					"duration":  "3",
				},
			},
		},
		{
			Name:     "premium_chat",
			Endpoint: EndpointChat,
			Body:     map[string]string{"message": "Premium calculation for 35-year-old female in Mumbai", "user_id": "probe"},
		},
	}
}
