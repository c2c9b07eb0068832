// Package llmtest provides a scripted Generator for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/okian/queryai/internal/adapters/llm"
)

// Fake answers requests by name. Unscripted names get Default.
type Fake struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []llm.Request

	// Default is returned for names without a scripted answer.
	Default string
	// Handler, when set, overrides the scripted answers.
	Handler func(req llm.Request) (string, error)
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{responses: make(map[string]string), errs: make(map[string]error)}
}

// Respond scripts the answer for requests named name.
func (f *Fake) Respond(name, text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[name] = text
	return f
}

// Fail scripts an error for requests named name.
func (f *Fake) Fail(name string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
	return f
}

// Generate implements llm.Generator.
func (f *Fake) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	handler := f.Handler
	err, failing := f.errs[req.Name]
	text, ok := f.responses[req.Name]
	if !ok {
		text = f.Default
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	if handler != nil {
		out, err := handler(req)
		return llm.Response{Text: out}, err
	}
	if failing {
		return llm.Response{}, err
	}
	return llm.Response{Text: text}, nil
}

// Calls returns the requests seen so far.
func (f *Fake) Calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.calls...)
}

// CallsNamed returns the requests seen with the given name.
func (f *Fake) CallsNamed(name string) []llm.Request {
	var out []llm.Request
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
