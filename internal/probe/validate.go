package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	errEmptyAnswer   = errors.New("empty answer")
	errBadVerdict    = errors.New("decision is neither APPROVED nor REJECTED")
	errMissingFields = errors.New("response is missing fields")
)

type queryResponse struct {
	Answer         string          `json:"answer"`
	ParsedQuery    json.RawMessage `json:"parsed_query"`
	SearchStrategy []string        `json:"search_strategy"`
}

type decisionResponse struct {
	Decision struct {
		Decision      string `json:"decision"`
		Amount        *int64 `json:"amount"`
		Justification string `json:"justification"`
	} `json:"decision"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
}

type chatResponse struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
}

// validate checks a 200 response body for the endpoint and returns a short
// summary of it.
func validate(endpoint Endpoint, body []byte) (string, error) {
	switch endpoint {
	case EndpointQuery:
		var r queryResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("decode query response: %w", err)
		}
		if strings.TrimSpace(r.Answer) == "" {
			return "", errEmptyAnswer
		}
		if len(r.ParsedQuery) == 0 || r.SearchStrategy == nil {
			return "", errMissingFields
		}
		return truncate(r.Answer), nil

	case EndpointDecision:
		var r decisionResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("decode decision response: %w", err)
		}
		if r.Decision.Decision != "APPROVED" && r.Decision.Decision != "REJECTED" {
			return "", fmt.Errorf("%w: %q", errBadVerdict, r.Decision.Decision)
		}
		if r.Status != "success" || r.Summary == "" {
			return "", errMissingFields
		}
		return truncate(r.Summary), nil

	case EndpointChat:
		var r chatResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("decode chat response: %w", err)
		}
		if strings.TrimSpace(r.Response) == "" {
			return "", errEmptyAnswer
		}
		if r.UserID == "" || r.Timestamp == "" {
			return "", errMissingFields
		}
		return truncate(r.Response), nil
	}
	return "", fmt.Errorf("unknown endpoint %q", endpoint)
}

const summaryLength = 120

func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > summaryLength {
		return string(r[:summaryLength]) + "..."
	}
	return s
}
