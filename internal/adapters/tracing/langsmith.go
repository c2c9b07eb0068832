package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/queryai/pkg/logger"
	"github.com/okian/queryai/pkg/metrics"
)

const (
	defaultEndpoint   = "https://api.smith.langchain.com"
	defaultProject    = "default"
	defaultBufferSize = 1024
	requestTimeout    = 10 * time.Second
)

// Option applies a configuration option to the LangSmith client.
type Option func(*LangSmith)

// WithEndpoint sets the LangSmith API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *LangSmith) {
		if endpoint != "" {
			c.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithProject sets the session name runs are filed under.
func WithProject(project string) Option {
	return func(c *LangSmith) {
		if project != "" {
			c.project = project
		}
	}
}

// WithHTTPClient sets the HTTP client used for submissions.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *LangSmith) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBufferSize bounds the number of pending submissions.
func WithBufferSize(size int) Option {
	return func(c *LangSmith) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// WithRetry sets the submission retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(c *LangSmith) {
		c.retry = cfg
	}
}

type submission struct {
	method string
	path   string
	body   map[string]any
}

// LangSmith sends runs to the LangSmith REST API from a background sender.
type LangSmith struct {
	endpoint   string
	apiKey     string
	project    string
	http       *http.Client
	bufferSize int
	retry      RetryConfig
	log        logger.Logger

	events  chan submission
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	sent    atomic.Int64
}

// NewLangSmith creates a client and starts its sender.
func NewLangSmith(apiKey string, opts ...Option) *LangSmith {
	c := &LangSmith{
		endpoint:   defaultEndpoint,
		apiKey:     apiKey,
		project:    defaultProject,
		http:       &http.Client{Timeout: requestTimeout},
		bufferSize: defaultBufferSize,
		retry:      DefaultRetryConfig(),
		log:        logger.Get().Named("tracing"),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = make(chan submission, c.bufferSize)
	go c.loop()
	return c
}

// Start opens a run and queues its creation.
func (c *LangSmith) Start(ctx context.Context, name string, runType RunType, inputs map[string]any) (context.Context, *Run) {
	ctx, r := newRun(ctx, name, runType, c)
	body := map[string]any{
		"id":           r.ID,
		"trace_id":     r.TraceID,
		"dotted_order": r.DottedOrder,
		"name":         name,
		"run_type":     string(runType),
		"inputs":       nonNil(inputs),
		"start_time":   r.StartTime.Format(time.RFC3339Nano),
		"session_name": c.project,
	}
	if r.ParentID != "" {
		body["parent_run_id"] = r.ParentID
	}
	c.enqueue(submission{method: http.MethodPost, path: "/runs", body: body})
	return ctx, r
}

func (c *LangSmith) finish(r *Run, outputs map[string]any, err error) {
	body := map[string]any{
		"outputs":      nonNil(outputs),
		"end_time":     time.Now().UTC().Format(time.RFC3339Nano),
		"trace_id":     r.TraceID,
		"dotted_order": r.DottedOrder,
	}
	if err != nil {
		body["error"] = err.Error()
	}
	c.enqueue(submission{method: http.MethodPatch, path: "/runs/" + r.ID, body: body})
}

func (c *LangSmith) enqueue(s submission) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		metrics.RecordTracingRun("dropped")
		return
	}
	select {
	case c.events <- s:
	default:
		c.dropped.Add(1)
		metrics.RecordTracingRun("dropped")
	}
}

func (c *LangSmith) loop() {
	defer close(c.done)
	for s := range c.events {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout*time.Duration(max(1, c.retry.MaxAttempts)))
		err := retry(ctx, c.retry, func() error { return c.send(ctx, s) })
		cancel()
		if err != nil {
			metrics.RecordTracingRun("failed")
			c.log.Warn(ctx, "langsmith submission failed",
				logger.String("method", s.method),
				logger.String("path", s.path),
				logger.Error(err))
			continue
		}
		c.sent.Add(1)
		metrics.RecordTracingRun("sent")
	}
}

func (c *LangSmith) send(ctx context.Context, s submission) error {
	payload, err := json.Marshal(s.body)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, s.method, c.endpoint+s.path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// Close stops accepting runs and waits for pending submissions or ctx.
func (c *LangSmith) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	close(c.events)
	c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain tracing buffer: %w", ctx.Err())
	}
}

// Dropped returns the number of submissions discarded because the buffer was full.
func (c *LangSmith) Dropped() int64 { return c.dropped.Load() }

// Sent returns the number of accepted submissions.
func (c *LangSmith) Sent() int64 { return c.sent.Load() }

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
