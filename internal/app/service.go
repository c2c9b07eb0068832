// Package service wires the query, decision, chat and ingestion components
// behind the operations the HTTP API exposes.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/queryai/internal/adapters/chatstore"
	"github.com/okian/queryai/internal/adapters/embedding"
	"github.com/okian/queryai/internal/adapters/llm"
	"github.com/okian/queryai/internal/adapters/loader"
	"github.com/okian/queryai/internal/adapters/mq/queue"
	"github.com/okian/queryai/internal/adapters/mq/worker"
	"github.com/okian/queryai/internal/adapters/tracing"
	"github.com/okian/queryai/internal/adapters/vectorstore"
	"github.com/okian/queryai/internal/domain/chat"
	"github.com/okian/queryai/internal/domain/chunker"
	"github.com/okian/queryai/internal/domain/decision"
	"github.com/okian/queryai/internal/domain/dedupe"
	"github.com/okian/queryai/internal/domain/parser"
	"github.com/okian/queryai/internal/domain/retrieval"
	"github.com/okian/queryai/internal/domain/types"
	"github.com/okian/queryai/pkg/logger"
	"github.com/okian/queryai/pkg/metrics"
)

const stopTimeout = 30 * time.Second

// Service implements the API dependencies for the query backend.
type Service struct {
	mu sync.RWMutex

	// Collaborators supplied by the caller
	gen     llm.Generator
	emb     embedding.Embedder
	tracer  tracing.Tracer
	store   vectorstore.Store
	chats   chatstore.Store
	loader  *loader.Loader
	backend string

	// Core components, built by Start
	parser    *parser.Parser
	retriever *retrieval.Retriever
	engine    *decision.Engine
	bot       *chat.Bot
	splitter  *chunker.Splitter
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	jobs      *jobRegistry

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	jobLimit       int
	contextWindow  int
	modelName      string
	embeddingModel string
	seedDocuments  []string

	parserOpts    []parser.Option
	retrievalOpts []retrieval.Option
	decisionOpts  []decision.Option
	chatOpts      []chat.Option
	chunkerOpts   []chunker.Option

	// State
	started bool
	cancel  context.CancelFunc

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of ingestion workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the ingestion queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many document fingerprints are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithJobLimit bounds how many ingestion jobs are kept for status lookups.
func WithJobLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.jobLimit = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the run tracer shared by every chain.
func WithTracer(t tracing.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithVectorStore sets the persistent chunk store and the backend name
// reported in stats.
func WithVectorStore(store vectorstore.Store, backend string) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.backend = backend
		}
	}
}

// WithChatStore sets the conversation memory.
func WithChatStore(store chatstore.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.chats = store
		}
	}
}

// WithLoader sets the document text extractor.
func WithLoader(l *loader.Loader) Option {
	return func(s *Service) {
		if l != nil {
			s.loader = l
		}
	}
}

// WithSeedDocuments lists files indexed when the service starts.
func WithSeedDocuments(paths ...string) Option {
	return func(s *Service) {
		s.seedDocuments = append(s.seedDocuments, paths...)
	}
}

// WithContextWindow sets the chat memory window used by the default store.
func WithContextWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.contextWindow = n
		}
	}
}

// WithModelNames sets the model names reported by the API.
func WithModelNames(model, embeddingModel string) Option {
	return func(s *Service) {
		s.modelName = model
		s.embeddingModel = embeddingModel
	}
}

// WithParserOptions forwards options to the query parser.
func WithParserOptions(opts ...parser.Option) Option {
	return func(s *Service) { s.parserOpts = append(s.parserOpts, opts...) }
}

// WithRetrievalOptions forwards options to the retriever.
func WithRetrievalOptions(opts ...retrieval.Option) Option {
	return func(s *Service) { s.retrievalOpts = append(s.retrievalOpts, opts...) }
}

// WithDecisionOptions forwards options to the decision engine.
func WithDecisionOptions(opts ...decision.Option) Option {
	return func(s *Service) { s.decisionOpts = append(s.decisionOpts, opts...) }
}

// WithChatOptions forwards options to the chatbot.
func WithChatOptions(opts ...chat.Option) Option {
	return func(s *Service) { s.chatOpts = append(s.chatOpts, opts...) }
}

// WithChunkerOptions forwards options to the text splitter.
func WithChunkerOptions(opts ...chunker.Option) Option {
	return func(s *Service) { s.chunkerOpts = append(s.chunkerOpts, opts...) }
}

// New constructs a Service around a generator and an embedder.
func New(gen llm.Generator, emb embedding.Embedder, opts ...Option) *Service {
	s := &Service{
		gen:           gen,
		emb:           emb,
		tracer:        tracing.Noop{},
		backend:       "memory",
		workerCount:   runtime.NumCPU(),
		queueSize:     1000,
		dedupeSize:    10000,
		jobLimit:      10000,
		contextWindow: 10,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the components and starts the ingestion workers. The workers
// outlive ctx; Stop ends them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting query service...")

	splitter, err := chunker.New(s.chunkerOpts...)
	if err != nil {
		return fmt.Errorf("build splitter: %w", err)
	}
	s.splitter = splitter

	if s.store == nil {
		s.store = vectorstore.NewMemory()
	}
	if s.chats == nil {
		s.chats = chatstore.NewMemory(chatstore.WithWindow(s.contextWindow))
	}
	if s.loader == nil {
		s.loader = loader.New()
	}

	s.parser = parser.New(s.gen, append([]parser.Option{parser.WithTracer(s.tracer)}, s.parserOpts...)...)
	s.retriever = retrieval.New(s.emb, s.store, s.gen,
		append([]retrieval.Option{retrieval.WithTracer(s.tracer)}, s.retrievalOpts...)...)
	s.engine = decision.New(s.parser, s.retriever, s.gen,
		append([]decision.Option{decision.WithTracer(s.tracer)}, s.decisionOpts...)...)
	s.bot = chat.New(s.gen, s.chats,
		append([]chat.Option{chat.WithTracer(s.tracer), chat.WithRetriever(s.retriever)}, s.chatOpts...)...)

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.jobs = newJobRegistry(s.jobLimit, s.deduper)
	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool = worker.NewPool(s.workerCount, s.queue, &indexer{svc: s}, s.jobs,
		worker.WithLogger(s.logger.Named("worker")))
	s.pool.Start(runCtx)

	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdateVectorStoreSize(n)
	}

	s.started = true
	s.logger.Info(ctx, "query service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("vectorStore", s.backend),
	)

	s.seed(ctx)
	return nil
}

// Stop drains the ingestion queue and closes the stores.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping query service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
		// stop the stragglers after their current job
		s.pool.Stop()
	}
	s.cancel()

	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "error closing vector store", logger.Error(err))
	}
	if err := s.chats.Close(); err != nil {
		s.logger.Warn(ctx, "error closing chat store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "query service stopped")
}

// Started reports whether Start has completed and Stop has not been called.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func (s *Service) ready() error {
	if !s.Started() {
		return ErrNotStarted
	}
	return nil
}

// Model returns the generation model name.
func (s *Service) Model() string { return s.modelName }

// ContextWindow returns the chat memory window.
func (s *Service) ContextWindow() int { return s.contextWindow }

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.Stats{
		Model:              s.modelName,
		EmbeddingModel:     s.embeddingModel,
		VectorStore:        s.backend,
		WorkerCount:        s.workerCount,
		QueueCapacity:      s.queueSize,
		TracingEnabled:     tracingEnabled(s.tracer),
		MaxContextMessages: s.contextWindow,
	}
	if !s.started {
		return stats
	}

	if n, err := s.store.Count(ctx); err == nil {
		stats.IndexedChunks = n
		metrics.UpdateVectorStoreSize(n)
	} else {
		s.logger.Warn(ctx, "count chunks failed", logger.Error(err))
	}
	if users, err := s.chats.Users(ctx); err == nil {
		stats.ActiveUsers = len(users)
		metrics.UpdateChatActiveUsers(len(users))
	}
	stats.QueueSize = s.queue.Len(ctx)
	stats.WorkerCount = s.pool.Size()
	stats.RememberedDocs = s.deduper.Size()

	metrics.UpdateQueueSize(stats.QueueSize)
	metrics.UpdateWorkerCount(stats.WorkerCount)
	return stats
}

// IndexedChunks returns the number of chunks in the persistent store.
func (s *Service) IndexedChunks(ctx context.Context) int {
	if err := s.ready(); err != nil {
		return 0
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0
	}
	return n
}

func tracingEnabled(t tracing.Tracer) bool {
	_, noop := t.(tracing.Noop)
	return !noop
}
