// Package parser turns free-text insurance questions into structured
// queries and search phrases.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/okian/queryai/internal/adapters/llm"
	"github.com/okian/queryai/internal/adapters/tracing"
	model "github.com/okian/queryai/internal/domain/model"
	"github.com/okian/queryai/pkg/logger"
	"github.com/okian/queryai/pkg/metrics"
)

const defaultTemperature = 0.2

// Option applies a configuration option to the Parser.
type Option func(*Parser)

// WithTemperature sets the sampling temperature of both prompts.
func WithTemperature(t float64) Option {
	return func(p *Parser) {
		if t >= 0 {
			p.temperature = t
		}
	}
}

// WithTracer records Process as a chain run.
func WithTracer(t tracing.Tracer) Option {
	return func(p *Parser) {
		if t != nil {
			p.tracer = t
		}
	}
}

// Parser structures queries with a language model. It never fails: every
// model error degrades to the fallback structure.
type Parser struct {
	gen         llm.Generator
	tracer      tracing.Tracer
	temperature float64
	log         logger.Logger
}

// New creates a Parser backed by gen.
func New(gen llm.Generator, opts ...Option) *Parser {
	p := &Parser{
		gen:         gen,
		tracer:      tracing.Noop{},
		temperature: defaultTemperature,
		log:         logger.Get().Named("parser"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the structured fields of query.
func (p *Parser) Parse(ctx context.Context, query string) model.ParsedQuery {
	resp, err := p.gen.Generate(ctx, llm.JSONPrompt("structure_query", fmt.Sprintf(structurePrompt, query), p.temperature))
	if err != nil {
		return p.fallback(ctx, query, "generate", err)
	}
	raw, err := llm.ExtractJSON(resp.Text)
	if err != nil {
		return p.fallback(ctx, query, "extract", err)
	}

	var parsed model.ParsedQuery
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return p.fallback(ctx, query, "decode", err)
	}
	if !model.ValidQueryType(parsed.QueryType) {
		parsed.QueryType = model.QueryGeneral
	}
	if parsed.Keywords == nil {
		parsed.Keywords = []string{}
	}
	parsed.OriginalQuery = query
	parsed.EnhancedSearchPhrases = nil
	return parsed
}

func (p *Parser) fallback(ctx context.Context, query, stage string, err error) model.ParsedQuery {
	metrics.RecordParserFallback()
	p.log.Warn(ctx, "query parsing fell back",
		logger.String("stage", stage),
		logger.Error(err),
	)
	return model.FallbackQuery(query)
}

// Enhance asks for alternative search phrases and returns the keywords
// followed by the phrases, without duplicates.
func (p *Parser) Enhance(ctx context.Context, parsed model.ParsedQuery) []string {
	structured, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return p.enhanceFallback(ctx, parsed, err)
	}
	resp, err := p.gen.Generate(ctx, llm.Prompt("enhance_query",
		fmt.Sprintf(enhancePrompt, parsed.OriginalQuery, structured), p.temperature))
	if err != nil {
		return p.enhanceFallback(ctx, parsed, err)
	}

	terms := append([]string{}, parsed.Keywords...)
	terms = append(terms, phrases(resp.Text)...)
	return unique(terms)
}

func (p *Parser) enhanceFallback(ctx context.Context, parsed model.ParsedQuery, err error) []string {
	p.log.Warn(ctx, "query enhancement failed", logger.Error(err))
	if len(parsed.Keywords) > 0 {
		return unique(parsed.Keywords)
	}
	return []string{parsed.OriginalQuery}
}

// Process parses query and attaches its enhanced search phrases.
func (p *Parser) Process(ctx context.Context, query string) model.ParsedQuery {
	ctx, run := p.tracer.Start(ctx, "QueryParser", tracing.RunChain, map[string]any{"query": query})
	parsed := p.Parse(ctx, query)
	parsed.EnhancedSearchPhrases = p.Enhance(ctx, parsed)
	run.End(map[string]any{"parsed_query": parsed}, nil)
	return parsed
}

// SearchTerms returns the enhanced phrases of query, or the query itself.
func (p *Parser) SearchTerms(ctx context.Context, query string) []string {
	parsed := p.Process(ctx, query)
	if len(parsed.EnhancedSearchPhrases) == 0 {
		return []string{query}
	}
	return parsed.EnhancedSearchPhrases
}

var listMarker = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s*`)

// phrases splits a model answer into one phrase per line, dropping list
// markers, surrounding quotes and heading lines.
func phrases(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(line, "\"'`*")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
