package probe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/queryai/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// fakeBackend answers like the query service. When broken is set, claim
// decisions come back with an unknown verdict.
func fakeBackend(broken bool, hits *atomic.Int64) *httptest.Server {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		write(w, map[string]string{"status": "healthy", "model": "gemini-test"})
	})
	mux.HandleFunc("POST /query", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		write(w, map[string]any{
			"answer":          "Knee surgery is covered after 24 months.",
			"parsed_query":    map[string]any{"query_type": "coverage"},
			"search_strategy": []string{"knee surgery waiting period"},
		})
	})
	mux.HandleFunc("POST /claim-decision", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		verdict := "REJECTED"
		if broken {
			verdict = "MAYBE"
		}
		write(w, map[string]any{
			"decision": map[string]any{"decision": verdict, "justification": "waiting period"},
			"summary":  "❌ CLAIM REJECTED - waiting period",
			"status":   "success",
		})
	})
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		write(w, map[string]string{
			"response":  "Premiums depend on age and city.",
			"timestamp": time.Now().Format(time.RFC3339),
			"user_id":   "probe",
		})
	})
	return httptest.NewServer(mux)
}

func TestRun(t *testing.T) {
	Convey("Given a healthy backend", t, func() {
		var hits atomic.Int64
		srv := fakeBackend(false, &hits)
		defer srv.Close()
		out := filepath.Join(t.TempDir(), "results", "probe.json")

		cfg := &Config{BaseURL: srv.URL, Rounds: 2, Workers: 3, Timeout: 5 * time.Second, OutputFile: out}

		Convey("When the default cases are run", func() {
			stats, err := Run(context.Background(), cfg, nil)

			Convey("Then every response should be valid", func() {
				So(err, ShouldBeNil)
				So(stats.Sent, ShouldEqual, 2*len(DefaultCases()))
				So(stats.Valid, ShouldEqual, stats.Sent)
				So(hits.Load(), ShouldEqual, int64(stats.Sent))
			})

			Convey("And the results should be saved in order", func() {
				data, err := os.ReadFile(out)
				So(err, ShouldBeNil)
				var results []Result
				So(json.Unmarshal(data, &results), ShouldBeNil)
				So(results, ShouldHaveLength, 2*len(DefaultCases()))
				So(results[0].Case, ShouldEqual, "coverage_question")
				So(results[0].Round, ShouldEqual, 1)
				So(results[len(results)-1].Round, ShouldEqual, 2)
			})
		})
	})

	Convey("Given a backend returning malformed decisions", t, func() {
		var hits atomic.Int64
		srv := fakeBackend(true, &hits)
		defer srv.Close()

		cfg := &Config{BaseURL: srv.URL, Rounds: 1, Workers: 2, Timeout: 5 * time.Second,
			OutputFile: filepath.Join(t.TempDir(), "probe.json")}

		Convey("When the default cases are run", func() {
			stats, err := Run(context.Background(), cfg, nil)

			Convey("Then the run should report invalid responses", func() {
				So(errors.Is(err, ErrInvalidResponses), ShouldBeTrue)
				So(stats.Invalid, ShouldEqual, 1)
				So(stats.Failed, ShouldEqual, 0)
			})
		})
	})

	Convey("Given no service listening", t, func() {
		cfg := &Config{BaseURL: "http://127.0.0.1:1", Rounds: 1, Workers: 1, Timeout: time.Second}

		Convey("When the probe starts", func() {
			_, err := Run(context.Background(), cfg, nil)

			Convey("Then the health check should fail", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "health check")
			})
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given response bodies", t, func() {
		Convey("An empty answer should be rejected", func() {
			_, err := validate(EndpointQuery, []byte(`{"answer":"  ","parsed_query":{},"search_strategy":[]}`))
			So(errors.Is(err, errEmptyAnswer), ShouldBeTrue)
		})

		Convey("A decision without a summary should be rejected", func() {
			_, err := validate(EndpointDecision, []byte(`{"decision":{"decision":"APPROVED"},"status":"success"}`))
			So(errors.Is(err, errMissingFields), ShouldBeTrue)
		})

		Convey("A chat reply should be summarized", func() {
			summary, err := validate(EndpointChat, []byte(`{"response":"Hello\n  there","timestamp":"t","user_id":"u"}`))
			So(err, ShouldBeNil)
			So(summary, ShouldEqual, "Hello there")
		})

		Convey("Long summaries should be truncated", func() {
			long := make([]rune, summaryLength+10)
			for i := range long {
				long[i] = 'a'
			}
			So([]rune(truncate(string(long))), ShouldHaveLength, summaryLength+3)
		})
	})
}
