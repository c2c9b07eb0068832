package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/okian/queryai/internal/adapters/tracing"
	"github.com/okian/queryai/pkg/logger"
	"github.com/okian/queryai/pkg/metrics"
)

const (
	defaultModel   = "gemini-1.5-flash"
	defaultTimeout = 60 * time.Second
)

// Option applies a configuration option to the Gemini generator.
type Option func(*Gemini)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithTimeout bounds every call.
func WithTimeout(d time.Duration) Option {
	return func(g *Gemini) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithTracer records every call as an llm run.
func WithTracer(t tracing.Tracer) Option {
	return func(g *Gemini) {
		if t != nil {
			g.tracer = t
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

// Gemini implements Generator with the Gemini API.
type Gemini struct {
	client     *genai.Client
	model      string
	timeout    time.Duration
	tracer     tracing.Tracer
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

// NewGemini creates a generator for the Gemini API.
func NewGemini(ctx context.Context, apiKey string, opts ...Option) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	g := &Gemini{
		model:   defaultModel,
		timeout: defaultTimeout,
		tracer:  tracing.Noop{},
		log:     logger.Get().Named("llm"),
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

// Model returns the model name.
func (g *Gemini) Model() string { return g.model }

// Generate sends req to the model.
func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	ctx, run := g.tracer.Start(ctx, "ChatGoogleGenerativeAI", tracing.RunLLM, map[string]any{
		"operation":   req.Name,
		"model":       g.model,
		"temperature": req.Temperature,
		"system":      req.System,
		"messages":    traceMessages(req.Messages),
	})

	start := time.Now()
	resp, err := g.generate(ctx, req)
	latency := float64(time.Since(start).Milliseconds())

	if err != nil {
		metrics.RecordLLMRequest(req.Name, "error", latency)
		g.log.Warn(ctx, "generation failed",
			logger.String("operation", req.Name),
			logger.Error(err))
		run.End(nil, err)
		return Response{}, err
	}

	metrics.RecordLLMRequest(req.Name, "success", latency)
	metrics.RecordLLMTokens(resp.PromptTokens, resp.CompletionTokens)
	run.End(map[string]any{
		"text":              resp.Text,
		"prompt_tokens":     resp.PromptTokens,
		"completion_tokens": resp.CompletionTokens,
	}, nil)
	return resp, nil
}

func (g *Gemini) generate(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, genai.Role(role)))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	out, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(out.Text())
	if text == "" {
		return Response{}, ErrEmptyResponse
	}

	resp := Response{Text: text}
	if u := out.UsageMetadata; u != nil {
		resp.PromptTokens = int(u.PromptTokenCount)
		resp.CompletionTokens = int(u.CandidatesTokenCount)
	}
	return resp, nil
}

func traceMessages(msgs []Message) []map[string]string {
	out := make([]map[string]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]string{"role": m.Role, "content": m.Text})
	}
	return out
}
