// Package retrieval answers policy questions from the chunks most similar
// to them (retrieval augmented generation).
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/queryai/internal/adapters/embedding"
	"github.com/okian/queryai/internal/adapters/llm"
	"github.com/okian/queryai/internal/adapters/tracing"
	"github.com/okian/queryai/internal/adapters/vectorstore"
	model "github.com/okian/queryai/internal/domain/model"
	"github.com/okian/queryai/internal/domain/types"
	"github.com/okian/queryai/pkg/logger"
	"github.com/okian/queryai/pkg/metrics"
)

// Apology is the answer returned when the pipeline fails.
const Apology = "Sorry, I couldn't process your query. Please try again."

const answerPrompt = `
You are a helpful insurance policy assistant. Answer the question based only on the provided context.

Context:
%s

Question: %s

Provide a clear, accurate answer based on the policy documents. If the information isn't in the context, say so.

Answer:`

// Default retrieval parameters.
const (
	defaultTopK        = 5
	defaultThreshold   = 0.7
	defaultPhraseCount = 3
	defaultPerPhraseK  = 2
	defaultMaxContext  = 5
	defaultTemperature = 0.2
)

// Option applies a configuration option to the Retriever.
type Option func(*Retriever)

// WithTopK sets how many chunks a direct search returns.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithScoreThreshold sets the minimum similarity of a direct search hit.
func WithScoreThreshold(s float64) Option {
	return func(r *Retriever) {
		if s >= 0 && s <= 1 {
			r.threshold = s
		}
	}
}

// WithPhraseCount sets how many enhanced phrases are searched.
func WithPhraseCount(n int) Option {
	return func(r *Retriever) {
		if n >= 0 {
			r.phraseCount = n
		}
	}
}

// WithPerPhraseK sets the hits taken per enhanced phrase.
func WithPerPhraseK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.perPhraseK = k
		}
	}
}

// WithMaxContextDocs caps the unique chunks placed in the prompt.
func WithMaxContextDocs(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.maxContext = n
		}
	}
}

// WithTemperature sets the answer temperature.
func WithTemperature(t float64) Option {
	return func(r *Retriever) {
		if t >= 0 {
			r.temperature = t
		}
	}
}

// WithTracer records retrievals and answers as runs.
func WithTracer(t tracing.Tracer) Option {
	return func(r *Retriever) {
		if t != nil {
			r.tracer = t
		}
	}
}

// Retriever searches a vector store and asks the model to answer from the
// hits.
type Retriever struct {
	emb    embedding.Embedder
	store  vectorstore.Store
	gen    llm.Generator
	tracer tracing.Tracer

	topK        int
	threshold   float64
	phraseCount int
	perPhraseK  int
	maxContext  int
	temperature float64

	log logger.Logger
}

// New creates a Retriever over store.
func New(emb embedding.Embedder, store vectorstore.Store, gen llm.Generator, opts ...Option) *Retriever {
	r := &Retriever{
		emb:         emb,
		store:       store,
		gen:         gen,
		tracer:      tracing.Noop{},
		topK:        defaultTopK,
		threshold:   defaultThreshold,
		phraseCount: defaultPhraseCount,
		perPhraseK:  defaultPerPhraseK,
		maxContext:  defaultMaxContext,
		temperature: defaultTemperature,
		log:         logger.Get().Named("retrieval"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithStore returns a copy of r searching store instead.
func (r *Retriever) WithStore(store vectorstore.Store) *Retriever {
	cp := *r
	cp.store = store
	return &cp
}

// RetrieveClauses returns the top_k chunks scoring at least the threshold.
func (r *Retriever) RetrieveClauses(ctx context.Context, query string) ([]model.ScoredChunk, error) {
	return r.search(ctx, query, r.topK, r.threshold)
}

func (r *Retriever) search(ctx context.Context, query string, k int, minScore float64) (hits []model.ScoredChunk, err error) {
	ctx, run := r.tracer.Start(ctx, "VectorStoreRetriever", tracing.RunRetriever, map[string]any{"query": query, "k": k})
	defer func() {
		run.End(map[string]any{"documents": types.FromScored(hits)}, err)
	}()

	start := time.Now()
	vec, err := r.emb.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrRetrieve, err)
	}
	hits, err = r.store.Search(ctx, vec, k, minScore)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrRetrieve, err)
	}
	metrics.RecordRetrieval(len(hits), float64(time.Since(start).Milliseconds()))
	return hits, nil
}

// AnswerWithPhrases answers question from chunks found for the question and
// its enhanced phrases. Failures are logged and answered with Apology.
func (r *Retriever) AnswerWithPhrases(ctx context.Context, question string, phrases []string) string {
	rc, err := r.ContextWithPhrases(ctx, question, phrases)
	if err != nil {
		r.log.Error(ctx, "enhanced rag query failed", logger.Error(err))
		return Apology
	}
	return rc.Answer
}

// ContextWithPhrases searches the question and the first phrase_count
// phrases concurrently, keeps the best unique chunks and answers from them.
func (r *Retriever) ContextWithPhrases(ctx context.Context, question string, phrases []string) (rc types.RetrievalContext, err error) {
	if strings.TrimSpace(question) == "" {
		return types.RetrievalContext{}, ErrEmptyQuestion
	}
	ctx, run := r.tracer.Start(ctx, "EnhancedRetrievalChain", tracing.RunChain, map[string]any{"input": question, "phrases": phrases})
	defer func() {
		run.End(map[string]any{"answer": rc.Answer}, err)
	}()

	hits, err := r.Gather(ctx, question, phrases)
	if err != nil {
		return types.RetrievalContext{}, err
	}
	return r.answer(ctx, question, hits)
}

// Gather searches the question and the first phrase_count phrases
// concurrently and returns the best max_context_docs unique chunks.
func (r *Retriever) Gather(ctx context.Context, question string, phrases []string) ([]model.ScoredChunk, error) {
	terms := searchTerms(question, phrases, r.phraseCount)
	results := make([][]model.ScoredChunk, len(terms))
	g, gctx := errgroup.WithContext(ctx)
	for i, term := range terms {
		g.Go(func() error {
			hits, err := r.search(gctx, term, r.perPhraseK, 0)
			if err != nil {
				return err
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merge(results, r.maxContext), nil
}

func (r *Retriever) answer(ctx context.Context, question string, hits []model.ScoredChunk) (types.RetrievalContext, error) {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Content
	}
	prompt := fmt.Sprintf(answerPrompt, strings.Join(parts, "\n\n"), question)

	resp, err := r.gen.Generate(ctx, llm.Prompt("rag_answer", prompt, r.temperature))
	if err != nil {
		return types.RetrievalContext{}, fmt.Errorf("%w: %w", ErrGenerate, err)
	}
	return types.RetrievalContext{
		Answer:          resp.Text,
		SourceDocuments: types.FromScored(hits),
		Query:           question,
	}, nil
}

// searchTerms is question followed by up to n distinct phrases.
func searchTerms(question string, phrases []string, n int) []string {
	terms := []string{question}
	seen := map[string]struct{}{strings.TrimSpace(question): {}}
	for _, p := range phrases {
		if len(terms) > n {
			break
		}
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		terms = append(terms, p)
	}
	return terms
}

// merge flattens hit lists, keeps the best score per chunk content and
// returns at most limit chunks by score.
func merge(results [][]model.ScoredChunk, limit int) []model.ScoredChunk {
	best := make(map[string]model.ScoredChunk)
	for _, hits := range results {
		for _, h := range hits {
			if cur, ok := best[h.Content]; !ok || h.Score > cur.Score {
				best[h.Content] = h
			}
		}
	}
	out := make([]model.ScoredChunk, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
