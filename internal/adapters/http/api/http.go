// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/okian/queryai/internal/adapters/loader"
	service "github.com/okian/queryai/internal/app"
	"github.com/okian/queryai/internal/domain/chat"
	model "github.com/okian/queryai/internal/domain/model"
	"github.com/okian/queryai/internal/domain/types"
	"github.com/okian/queryai/pkg/logger"
)

const (
	maxJSONBytes     = 1 << 20
	defaultMaxUpload = 20 << 20
	multipartMemory  = 8 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Query(ctx context.Context, question string) (types.QueryAnswer, error)
	ProcessQuery(ctx context.Context, query string, uploads []service.Upload) (types.ProcessResult, error)
	ClaimDecision(ctx context.Context, query string, patient *model.PatientDetails) (model.Decision, string, error)
	BatchDecisions(ctx context.Context, queries []string) ([]model.Decision, error)
	QueryWithDecision(ctx context.Context, query string) (types.CombinedAnswer, error)

	Chat(ctx context.Context, userID, message string) (string, error)
	History(ctx context.Context, userID string) ([]model.ChatMessage, error)
	ClearHistory(ctx context.Context, userID string) (bool, error)
	Users(ctx context.Context) ([]string, error)

	IngestFile(ctx context.Context, name string, r io.Reader) (types.JobRef, error)
	Job(ctx context.Context, id string) (model.IngestJob, error)

	Stats(ctx context.Context) types.Stats
	Model() string
	ContextWindow() int
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits the model-backed routes to rps requests per second
// with the given burst. A non-positive rps disables the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxUploadBytes bounds multipart request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps      Dependencies
	limiter   *rate.Limiter
	maxUpload int64
	logger    logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:      deps,
		maxUpload: defaultMaxUpload,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	handle := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
	}
	limited := func(h http.HandlerFunc) http.HandlerFunc {
		return RateLimitMiddleware(s.limiter, h)
	}

	handle("GET /{$}", "root", s.handleRoot)
	handle("GET /health", "health", s.handleHealth)
	handle("GET /metrics", "metrics", handleMetrics)
	handle("GET /stats", "stats", s.handleStats)

	handle("POST /query", "query", limited(s.handleQuery))
	handle("POST /process_query/", "process_query", limited(s.handleProcessQuery))
	handle("POST /claim-decision", "claim_decision", limited(s.handleClaimDecision))
	handle("POST /claim-decisions/batch", "claim_decisions_batch", limited(s.handleBatchDecisions))
	handle("POST /query-with-decision", "query_with_decision", limited(s.handleQueryWithDecision))
	handle("POST /chat", "chat", limited(s.handleChat))

	handle("GET /history/{user_id}", "history", s.handleGetHistory)
	handle("DELETE /history/{user_id}", "history", s.handleClearHistory)
	handle("GET /users", "users", s.handleUsers)

	handle("POST /documents", "documents", s.handleUploadDocuments)
	handle("GET /documents/jobs/{id}", "documents_job", s.handleGetJob)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail maps err to a status and code, logging server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrTooLarge), errors.Is(err, loader.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrNotFound), errors.Is(err, service.ErrJobNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrEmptyQuery),
		errors.Is(err, service.ErrNoDocuments),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, loader.ErrUnsupportedType),
		errors.Is(err, loader.ErrEmptyDocument),
		errors.Is(err, loader.ErrExtract):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// untouched so query-string parameters can be used instead.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}
