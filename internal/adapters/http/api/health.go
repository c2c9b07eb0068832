package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/queryai/pkg/metrics"
)

const rootMessage = "🎓 Query Chatbot API is running!"

type rootResponse struct {
	Message         string `json:"message"`
	Status          string `json:"status"`
	Model           string `json:"model"`
	ContextMessages int    `json:"context_messages"`
	Docs            string `json:"docs"`
	Health          string `json:"health"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Model     string `json:"model"`
}

// handleRoot handles GET / requests.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Message:         rootMessage,
		Status:          "active",
		Model:           s.deps.Model(),
		ContextMessages: s.deps.ContextWindow(),
		Docs:            "/docs",
		Health:          "/health",
	})
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Model:     s.deps.Model(),
	})
}

// handleMetrics serves the custom registry in the Prometheus exposition format.
func handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
