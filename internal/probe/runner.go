package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/queryai/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
	percent             = 100
)

// ErrInvalidResponses is returned when at least one request failed or
// returned a malformed answer.
var ErrInvalidResponses = errors.New("probe saw invalid responses")

// Run checks the service health, sends every case Rounds times across
// Workers goroutines and saves the results.
func Run(ctx context.Context, config *Config, cases []Case) (*Stats, error) {
	if len(cases) == 0 {
		cases = DefaultCases()
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("probe")

	log.Info(ctx, "starting query probe",
		logger.String("baseURL", config.BaseURL),
		logger.Int("cases", len(cases)),
		logger.Int("rounds", config.Rounds),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
	)

	client := newHTTPClient(config.Timeout)

	if err := checkServiceHealth(ctx, client, config.BaseURL); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	results := sendCases(ctx, client, config, cases)
	for _, r := range results {
		stats.Sent++
		switch {
		case r.Valid:
			stats.Valid++
		case r.StatusCode == 0:
			stats.Failed++
		default:
			stats.Invalid++
		}
		stats.MaxLatency = max(stats.MaxLatency, r.Latency)
	}

	if err := saveResults(ctx, config.OutputFile, results); err != nil {
		log.Warn(ctx, "failed to save results", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if stats.Valid != stats.Sent {
		return stats, fmt.Errorf("%w: %d of %d", ErrInvalidResponses, stats.Sent-stats.Valid, stats.Sent)
	}
	log.Info(ctx, "probe completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service reports itself healthy.
func checkServiceHealth(ctx context.Context, client *HTTPClient, baseURL string) error {
	resp, err := client.Get(ctx, baseURL+"/health")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	var health struct {
		Status string `json:"status"`
		Model  string `json:"model"`
	}
	if err := json.Unmarshal(body, &health); err != nil || health.Status != "healthy" {
		return fmt.Errorf("service is not healthy: %s", body)
	}
	logger.Get().Info(ctx, "service is healthy", logger.String("model", health.Model))
	return nil
}

// sendCases runs every case for every round with bounded concurrency.
// Results come back in submission order.
func sendCases(ctx context.Context, client *HTTPClient, config *Config, cases []Case) []Result {
	rounds := max(config.Rounds, 1)
	results := make([]Result, rounds*len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(config.Workers, 1))

	var mu sync.Mutex
	done := 0
	for round := range rounds {
		for i, c := range cases {
			g.Go(func() error {
				r := sendCase(gctx, client, config.BaseURL, c)
				r.Round = round + 1
				results[round*len(cases)+i] = r

				mu.Lock()
				done++
				n := done
				mu.Unlock()
				if config.Verbose {
					logger.Get().Info(gctx, "response",
						logger.String("case", r.Case),
						logger.Int("status", r.StatusCode),
						logger.Bool("valid", r.Valid),
						logger.Duration("latency", r.Latency),
						logger.String("summary", r.Summary),
						logger.String("error", r.Error),
						logger.Int("progress", n),
					)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}

func sendCase(ctx context.Context, client *HTTPClient, baseURL string, c Case) Result {
	r := Result{Case: c.Name, Endpoint: c.Endpoint}
	start := time.Now()
	resp, err := client.Post(ctx, baseURL+string(c.Endpoint), c.Body)
	if err != nil {
		r.Latency = time.Since(start)
		r.Error = err.Error()
		return r
	}
	body, err := readResponseBody(resp)
	r.Latency = time.Since(start)
	r.StatusCode = resp.StatusCode
	if err != nil {
		r.Error = err.Error()
		return r
	}
	if resp.StatusCode != http.StatusOK {
		r.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(body)))
		return r
	}
	summary, err := validate(c.Endpoint, body)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Valid = true
	r.Summary = summary
	return r
}

// saveResults writes the results as a JSON array.
func saveResults(ctx context.Context, filename string, results []Result) error {
	if len(results) == 0 {
		return errors.New("no results to save")
	}
	if filename == "" {
		filename = "probe_results_" + time.Now().Format("20060102_150405") + ".json"
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "results saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var validRate, requestsPerSecond float64
	if stats.Sent > 0 {
		validRate = float64(stats.Valid) / float64(stats.Sent) * percent
	}
	if stats.Duration > 0 {
		requestsPerSecond = float64(stats.Sent) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("sent", stats.Sent),
		logger.Int("valid", stats.Valid),
		logger.Int("invalid", stats.Invalid),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
		logger.Duration("maxLatency", stats.MaxLatency),
		logger.Float64("validRate", validRate),
		logger.Float64("requestsPerSecond", requestsPerSecond),
	)
}
