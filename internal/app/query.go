package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/okian/queryai/internal/adapters/tracing"
	"github.com/okian/queryai/internal/adapters/vectorstore"
	model "github.com/okian/queryai/internal/domain/model"
	"github.com/okian/queryai/internal/domain/types"
	"github.com/okian/queryai/pkg/logger"
	"github.com/okian/queryai/pkg/metrics"
)

// Upload is one file attached to a process_query request.
type Upload struct {
	Name string
	Body io.Reader
}

// claimWords route a combined query through the decision engine.
var claimWords = []string{"claim", "surgery"}

func since(start time.Time) float64 {
	return float64(time.Since(start).Milliseconds())
}

// Query answers a question from the indexed policy documents using the
// parser's enhanced search phrases.
func (s *Service) Query(ctx context.Context, question string) (types.QueryAnswer, error) {
	if err := s.ready(); err != nil {
		return types.QueryAnswer{}, err
	}
	if strings.TrimSpace(question) == "" {
		return types.QueryAnswer{}, ErrEmptyQuery
	}
	start := time.Now()
	defer func() { metrics.RecordQuery("query", since(start)) }()

	parsed := s.parser.Process(ctx, question)
	answer := s.retriever.AnswerWithPhrases(ctx, question, parsed.EnhancedSearchPhrases)

	strategy := parsed.EnhancedSearchPhrases
	if strategy == nil {
		strategy = []string{}
	}
	return types.QueryAnswer{
		Answer:         answer,
		ParsedQuery:    parsed,
		SearchStrategy: strategy,
	}, nil
}

// ProcessQuery adjudicates query against the uploaded documents only. The
// documents are indexed into a store that lives for this call.
func (s *Service) ProcessQuery(ctx context.Context, query string, uploads []Upload) (res types.ProcessResult, err error) {
	if err := s.ready(); err != nil {
		return types.ProcessResult{}, err
	}
	if strings.TrimSpace(query) == "" {
		return types.ProcessResult{}, ErrEmptyQuery
	}
	if len(uploads) == 0 {
		return types.ProcessResult{}, ErrNoDocuments
	}
	start := time.Now()
	defer func() { metrics.RecordQuery("process_query", since(start)) }()

	ctx, run := s.tracer.Start(ctx, "ProcessQuery", tracing.RunChain, map[string]any{"query": query, "documents": len(uploads)})
	defer func() { run.End(map[string]any{"decision": res.Decision}, err) }()

	store := vectorstore.NewMemory()
	defer func() { _ = store.Close() }()

	for _, u := range uploads {
		doc, err := s.loader.Load(ctx, u.Name, u.Body)
		if err != nil {
			return types.ProcessResult{}, err
		}
		if _, err := s.indexInto(ctx, store, doc); err != nil {
			return types.ProcessResult{}, err
		}
	}

	parsed := s.parser.Process(ctx, query)
	hits, err := s.retriever.WithStore(store).Gather(ctx, query, parsed.EnhancedSearchPhrases)
	if err != nil {
		return types.ProcessResult{}, fmt.Errorf("gather clauses: %w", err)
	}

	patient := model.PatientFromQuery(parsed)
	d := s.engine.DecideWithClauses(ctx, query, &patient, hits)

	mapping := d.ClauseMapping
	if mapping == nil {
		mapping = []model.ClauseMatch{}
	}
	s.logger.Info(ctx, "processed query",
		logger.Int("documents", len(uploads)),
		logger.Int("clauses", len(hits)),
		logger.String("decision", d.Decision),
	)
	return types.ProcessResult{
		Decision:      d.Decision,
		Amount:        d.Amount,
		Justification: d.Justification,
		ClauseMapping: mapping,
	}, nil
}

// ClaimDecision adjudicates a claim and renders its summary line. A nil
// patient is parsed from the query.
func (s *Service) ClaimDecision(ctx context.Context, query string, patient *model.PatientDetails) (model.Decision, string, error) {
	if err := s.ready(); err != nil {
		return model.Decision{}, "", err
	}
	if strings.TrimSpace(query) == "" {
		return model.Decision{}, "", ErrEmptyQuery
	}
	start := time.Now()
	defer func() { metrics.RecordQuery("claim_decision", since(start)) }()

	d := s.engine.Decide(ctx, query, patient)
	return d, s.engine.Summary(d), nil
}

// BatchDecisions adjudicates every query concurrently, preserving order.
func (s *Service) BatchDecisions(ctx context.Context, queries []string) ([]model.Decision, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, ErrEmptyQuery
	}
	start := time.Now()
	defer func() { metrics.RecordQuery("batch", since(start)) }()

	return s.engine.Batch(ctx, queries), nil
}

// QueryWithDecision answers query and, for claim-like queries, adds a
// decision.
func (s *Service) QueryWithDecision(ctx context.Context, query string) (types.CombinedAnswer, error) {
	qa, err := s.Query(ctx, query)
	if err != nil {
		return types.CombinedAnswer{}, err
	}
	start := time.Now()
	defer func() { metrics.RecordQuery("query_with_decision", since(start)) }()

	if !IsClaimQuery(query) {
		return types.CombinedAnswer{Answer: qa.Answer, Type: types.TypeGeneralQuery}, nil
	}

	d := s.engine.Decide(ctx, query, nil)
	return types.CombinedAnswer{
		Answer:   qa.Answer,
		Type:     types.TypeClaimProcessing,
		Decision: &d,
		Summary:  s.engine.Summary(d),
	}, nil
}

// IsClaimQuery reports whether query asks about a claim.
func IsClaimQuery(query string) bool {
	q := strings.ToLower(query)
	for _, w := range claimWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

// Chat sends message to the chatbot on behalf of userID.
func (s *Service) Chat(ctx context.Context, userID, message string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	start := time.Now()
	defer func() { metrics.RecordQuery("chat", since(start)) }()
	return s.bot.Respond(ctx, userID, message)
}

// History returns the remembered conversation of userID.
func (s *Service) History(ctx context.Context, userID string) ([]model.ChatMessage, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.bot.History(ctx, userID)
}

// ClearHistory forgets the conversation of userID.
func (s *Service) ClearHistory(ctx context.Context, userID string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	return s.bot.Clear(ctx, userID)
}

// Users returns the ids with a remembered conversation.
func (s *Service) Users(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.bot.Users(ctx)
}
