// Package embedding turns text into vectors with the Gemini embedding API.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/okian/queryai/internal/adapters/tracing"
	"github.com/okian/queryai/pkg/metrics"
)

// Task types sent with each request.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

const (
	defaultModel     = "gemini-embedding-001"
	defaultBatchSize = 100
)

// Embedder produces vectors for documents and queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Option applies a configuration option to the Gemini embedder.
type Option func(*Gemini)

// WithModel sets the embedding model.
func WithModel(model string) Option {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithDimensions truncates vectors to n dimensions. Zero keeps the model default.
func WithDimensions(n int) Option {
	return func(g *Gemini) {
		g.dimensions = n
	}
}

// WithBatchSize caps the number of texts per request.
func WithBatchSize(n int) Option {
	return func(g *Gemini) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(g *Gemini) {
		g.baseURL = u
	}
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *Gemini) {
		g.httpClient = hc
	}
}

// WithTracer records query embeddings as retriever-side runs.
func WithTracer(t tracing.Tracer) Option {
	return func(g *Gemini) {
		if t != nil {
			g.tracer = t
		}
	}
}

// Gemini implements Embedder.
type Gemini struct {
	client     *genai.Client
	model      string
	dimensions int
	batchSize  int
	baseURL    string
	httpClient *http.Client
	tracer     tracing.Tracer
}

// NewGemini creates an embedder for the Gemini API.
func NewGemini(ctx context.Context, apiKey string, opts ...Option) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	g := &Gemini{
		model:     defaultModel,
		batchSize: defaultBatchSize,
		tracer:    tracing.Noop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

// Model returns the embedding model name.
func (g *Gemini) Model() string { return g.model }

// EmbedDocuments embeds texts in batches, preserving order.
func (g *Gemini) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		vecs, err := g.embed(ctx, texts[start:end], TaskRetrievalDocument)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery embeds a single search query.
func (g *Gemini) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, run := g.tracer.Start(ctx, "GoogleGenerativeAIEmbeddings", tracing.RunTool, map[string]any{"query": text, "model": g.model})
	vecs, err := g.embed(ctx, []string{text}, TaskRetrievalQuery)
	if err != nil {
		run.End(nil, err)
		return nil, err
	}
	run.End(map[string]any{"dimensions": len(vecs[0])}, nil)
	return vecs[0], nil
}

func (g *Gemini) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{TaskType: task}
	if g.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(g.dimensions))
	}

	start := time.Now()
	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, cfg)
	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordEmbedding("error", len(texts), latency)
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		metrics.RecordEmbedding("error", len(texts), latency)
		return nil, fmt.Errorf("%w: got %d for %d texts", ErrDimensionMismatch, len(resp.Embeddings), len(texts))
	}
	metrics.RecordEmbedding("success", len(texts), latency)

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("%w: empty embedding at %d", ErrDimensionMismatch, i)
		}
		out[i] = e.Values
	}
	return out, nil
}
