// Package decision adjudicates insurance claims against retrieved policy
// clauses.
package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/okian/queryai/internal/adapters/llm"
	"github.com/okian/queryai/internal/adapters/tracing"
	"github.com/okian/queryai/internal/domain/coverage"
	model "github.com/okian/queryai/internal/domain/model"
	"github.com/okian/queryai/pkg/logger"
	"github.com/okian/queryai/pkg/metrics"
)

// Default engine parameters.
const (
	defaultTemperature = 0.1
	defaultPayout      = 50000
	defaultConcurrency = 4
)

// QueryParser extracts patient facts from a claim query.
type QueryParser interface {
	Parse(ctx context.Context, query string) model.ParsedQuery
}

// ClauseRetriever finds the policy clauses relevant to a query.
type ClauseRetriever interface {
	RetrieveClauses(ctx context.Context, query string) ([]model.ScoredChunk, error)
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTemperature sets the decision temperature.
func WithTemperature(t float64) Option {
	return func(e *Engine) {
		if t >= 0 {
			e.temperature = t
		}
	}
}

// WithDefaultPayout sets the payout suggested for a standard surgery.
func WithDefaultPayout(amount int64) Option {
	return func(e *Engine) {
		if amount > 0 {
			e.payout = amount
		}
	}
}

// WithRules replaces the coverage rules.
func WithRules(r *coverage.Rules) Option {
	return func(e *Engine) {
		if r != nil {
			e.rules = r
		}
	}
}

// WithConcurrency bounds Batch parallelism.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTracer records each decision as a chain run.
func WithTracer(t tracing.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// Engine produces claim decisions. It never returns an error: failures are
// reported inside the Decision.
type Engine struct {
	parser    QueryParser
	retriever ClauseRetriever
	gen       llm.Generator
	rules     *coverage.Rules
	tracer    tracing.Tracer

	temperature float64
	payout      int64
	concurrency int

	printer *message.Printer
	log     logger.Logger
}

// New creates an Engine.
func New(parser QueryParser, retriever ClauseRetriever, gen llm.Generator, opts ...Option) *Engine {
	e := &Engine{
		parser:      parser,
		retriever:   retriever,
		gen:         gen,
		rules:       coverage.NewRules(),
		tracer:      tracing.Noop{},
		temperature: defaultTemperature,
		payout:      defaultPayout,
		concurrency: defaultConcurrency,
		printer:     message.NewPrinter(language.English),
		log:         logger.Get().Named("decision"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide adjudicates query. When patient is nil the facts are parsed from
// the query and missing ones read "Unknown".
func (e *Engine) Decide(ctx context.Context, query string, patient *model.PatientDetails) model.Decision {
	ctx, run := e.tracer.Start(ctx, "InsuranceDecisionEngine", tracing.RunChain, map[string]any{"query": query, "patient_data": patient})

	p := e.patient(ctx, query, patient)
	hits, err := e.retriever.RetrieveClauses(ctx, query)
	if err != nil {
		d := e.failed(ctx, query, p, fmt.Errorf("retrieve clauses: %w", err))
		run.End(map[string]any{"decision": d}, err)
		return d
	}

	d := e.decide(ctx, query, p, hits, false)
	run.End(map[string]any{"decision": d}, nil)
	return d
}

// DecideWithClauses adjudicates query against the given clauses and
// records which clauses were used.
func (e *Engine) DecideWithClauses(ctx context.Context, query string, patient *model.PatientDetails, clauses []model.ScoredChunk) model.Decision {
	ctx, run := e.tracer.Start(ctx, "InsuranceDecisionEngine", tracing.RunChain, map[string]any{"query": query, "clauses": len(clauses)})
	p := e.patient(ctx, query, patient)
	d := e.decide(ctx, query, p, clauses, true)
	run.End(map[string]any{"decision": d}, nil)
	return d
}

// Batch decides every query, preserving input order.
func (e *Engine) Batch(ctx context.Context, queries []string) []model.Decision {
	out := make([]model.Decision, len(queries))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			out[i] = e.Decide(ctx, q, nil)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Summary renders a one-line human readable verdict.
func (e *Engine) Summary(d model.Decision) string {
	if d.Approved() {
		amount := "N/A"
		if d.Amount != nil {
			amount = "₹" + e.printer.Sprintf("%d", *d.Amount)
		}
		return fmt.Sprintf("✅ CLAIM APPROVED - Amount: %s | %s", amount, d.Justification)
	}
	return "❌ CLAIM REJECTED - " + d.Justification
}

func (e *Engine) patient(ctx context.Context, query string, patient *model.PatientDetails) model.PatientDetails {
	if patient != nil {
		return patient.WithDefaults()
	}
	return model.PatientFromQuery(e.parser.Parse(ctx, query))
}

func (e *Engine) decide(ctx context.Context, query string, p model.PatientDetails, hits []model.ScoredChunk, mapping bool) model.Decision {
	start := time.Now()
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Content
	}
	prompt := fmt.Sprintf(decisionPrompt,
		strings.Join(texts, "\n\n"),
		p.Age, p.Gender, p.Procedure, p.Location, p.PolicyDuration,
		e.printer.Sprintf("%d", e.payout),
		e.rules.PromptText(),
	)

	resp, err := e.gen.Generate(ctx, llm.JSONPrompt("claim_decision", prompt, e.temperature))
	if err != nil {
		return e.failed(ctx, query, p, fmt.Errorf("generate decision: %w", err))
	}

	var d model.Decision
	raw, err := llm.ExtractJSON(resp.Text)
	switch {
	case err != nil:
		metrics.RecordDecisionFallback()
		e.log.Warn(ctx, "decision answer carried no json", logger.String("query", query))
		d = model.FallbackDecision()
	default:
		d, err = decode(raw)
		if err != nil {
			return e.failed(ctx, query, p, err)
		}
	}

	in := coverage.Input{Query: query, Procedure: p.Procedure, PolicyDuration: p.PolicyDuration}
	d.RiskFactors = mergeRisks(d.RiskFactors, e.rules.Evaluate(ctx, in))
	d.PatientDetails = &p
	d.Query = query
	d.ClausesCount = len(hits)
	if mapping {
		d.ClauseMapping = make([]model.ClauseMatch, len(hits))
		for i, h := range hits {
			d.ClauseMapping[i] = model.ClauseMatch{Clause: h.Content, Source: h.Source, Score: h.Score}
		}
	}

	metrics.RecordDecision(d.Decision)
	e.log.Info(ctx, "claim decided",
		logger.String("decision", d.Decision),
		logger.String("coverage", d.CoverageStatus),
		logger.Int("clauses", len(hits)),
		logger.Duration("took", time.Since(start)),
	)
	return d
}

func (e *Engine) failed(ctx context.Context, query string, p model.PatientDetails, err error) model.Decision {
	e.log.Error(ctx, "claim decision failed", logger.Error(err))
	metrics.RecordDecision(model.DecisionRejected)
	metrics.RecordErrorByComponent("decision", "system_error")
	d := model.ErrorDecision(err)
	d.PatientDetails = &p
	d.Query = query
	return d
}

// decode parses the model's JSON verdict. An unknown decision value yields
// the fallback verdict.
func decode(raw string) (model.Decision, error) {
	var payload struct {
		Decision       string          `json:"decision"`
		Amount         json.RawMessage `json:"amount"`
		Justification  string          `json:"justification"`
		RiskFactors    json.RawMessage `json:"risk_factors"`
		CoverageStatus string          `json:"coverage_status"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return model.Decision{}, fmt.Errorf("decode decision: %w", err)
	}

	verdict := strings.ToUpper(strings.TrimSpace(payload.Decision))
	if verdict != model.DecisionApproved && verdict != model.DecisionRejected {
		metrics.RecordDecisionFallback()
		return model.FallbackDecision(), nil
	}

	d := model.Decision{
		Decision:       verdict,
		Amount:         parseAmount(payload.Amount),
		Justification:  strings.TrimSpace(payload.Justification),
		RiskFactors:    parseRisks(payload.RiskFactors),
		CoverageStatus: normalizeCoverage(payload.CoverageStatus, verdict),
	}
	return d, nil
}

// parseAmount accepts 50000, 50000.0, "50000" and "₹50,000". Amounts that do
// not fit an int64 are dropped.
func parseAmount(raw json.RawMessage) *int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return toAmount(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil
	}
	return toAmount(f)
}

func toAmount(f float64) *int64 {
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range
	if math.IsNaN(f) || f >= float64(math.MaxInt64) || f < float64(math.MinInt64) {
		return nil
	}
	v := int64(f)
	return &v
}

func parseRisks(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		return []string{strings.TrimSpace(s)}
	}
	return []string{}
}

func normalizeCoverage(status, verdict string) string {
	switch s := strings.ToLower(strings.TrimSpace(status)); s {
	case model.CoverageFull, model.CoveragePartial, model.CoverageNone:
		return s
	}
	if verdict == model.DecisionApproved {
		return model.CoverageFull
	}
	return model.CoverageNone
}

// mergeRisks appends local findings the model did not already report.
func mergeRisks(reported, local []string) []string {
	out := append([]string{}, reported...)
	seen := make(map[string]struct{}, len(out))
	for _, r := range out {
		seen[strings.ToLower(r)] = struct{}{}
	}
	for _, r := range local {
		if _, ok := seen[strings.ToLower(r)]; ok {
			continue
		}
		seen[strings.ToLower(r)] = struct{}{}
		out = append(out, r)
	}
	return out
}
