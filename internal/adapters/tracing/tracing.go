// Package tracing records LangSmith runs for chains, retrievers and model
// calls. Submission is asynchronous and never fails the traced operation.
package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunType classifies a run in LangSmith.
type RunType string

// Run types used by the service.
const (
	RunChain     RunType = "chain"
	RunLLM       RunType = "llm"
	RunRetriever RunType = "retriever"
	RunTool      RunType = "tool"
)

// Tracer starts runs. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start opens a run as a child of the run stored in ctx, if any, and
	// returns a context carrying the new run.
	Start(ctx context.Context, name string, runType RunType, inputs map[string]any) (context.Context, *Run)
}

// Run is an open trace span. A nil Run is valid and does nothing.
type Run struct {
	ID          string
	TraceID     string
	ParentID    string
	DottedOrder string
	Name        string
	Type        RunType
	StartTime   time.Time

	sink sink
	once sync.Once
}

type sink interface {
	finish(r *Run, outputs map[string]any, err error)
}

// End closes the run with its outputs or error. Only the first call counts.
func (r *Run) End(outputs map[string]any, err error) {
	if r == nil || r.sink == nil {
		return
	}
	r.once.Do(func() {
		r.sink.finish(r, outputs, err)
	})
}

type runKey struct{}

// FromContext returns the run carried by ctx.
func FromContext(ctx context.Context) *Run {
	r, _ := ctx.Value(runKey{}).(*Run)
	return r
}

func newRun(ctx context.Context, name string, runType RunType, s sink) (context.Context, *Run) {
	now := time.Now().UTC()
	id := uuid.NewString()
	r := &Run{
		ID:        id,
		TraceID:   id,
		Name:      name,
		Type:      runType,
		StartTime: now,
		sink:      s,
	}
	segment := now.Format("20060102T150405.000000Z") + id
	segment = stripDot(segment)
	if parent := FromContext(ctx); parent != nil {
		r.ParentID = parent.ID
		r.TraceID = parent.TraceID
		r.DottedOrder = parent.DottedOrder + "." + segment
	} else {
		r.DottedOrder = segment
	}
	return context.WithValue(ctx, runKey{}, r), r
}

// stripDot removes the fractional separator so the segment matches
// LangSmith's %Y%m%dT%H%M%S%fZ layout.
func stripDot(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i] + s[i+1:]
		}
	}
	return s
}

// Noop is a Tracer that records nothing.
type Noop struct{}

// Start returns ctx unchanged and a nil run.
func (Noop) Start(ctx context.Context, _ string, _ RunType, _ map[string]any) (context.Context, *Run) {
	return ctx, nil
}
