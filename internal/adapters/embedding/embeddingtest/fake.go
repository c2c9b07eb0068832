// Package embeddingtest provides a deterministic Embedder for tests.
package embeddingtest

import (
	"context"
	"strings"
	"sync/atomic"
)

// Fake embeds text as term counts over a fixed vocabulary, so texts sharing
// vocabulary words are similar and unrelated texts score zero.
type Fake struct {
	Vocab []string
	// Err, when set, is returned by every call.
	Err error

	calls atomic.Int64
}

// New creates a Fake over vocab.
func New(vocab ...string) *Fake {
	return &Fake{Vocab: vocab}
}

// Calls returns how many embedding requests were made.
func (f *Fake) Calls() int { return int(f.calls.Load()) }

func (f *Fake) vector(text string) []float32 {
	text = strings.ToLower(text)
	v := make([]float32, len(f.Vocab))
	for i, w := range f.Vocab {
		v[i] = float32(strings.Count(text, strings.ToLower(w)))
	}
	return v
}

// EmbedDocuments implements embedding.Embedder.
func (f *Fake) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

// EmbedQuery implements embedding.Embedder.
func (f *Fake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}
