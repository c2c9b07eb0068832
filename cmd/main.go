package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/queryai/internal/adapters/chatstore"
	"github.com/okian/queryai/internal/adapters/embedding"
	"github.com/okian/queryai/internal/adapters/http/api"
	"github.com/okian/queryai/internal/adapters/http/swagger"
	"github.com/okian/queryai/internal/adapters/llm"
	"github.com/okian/queryai/internal/adapters/loader"
	"github.com/okian/queryai/internal/adapters/tracing"
	"github.com/okian/queryai/internal/adapters/vectorstore"
	app "github.com/okian/queryai/internal/app"
	"github.com/okian/queryai/internal/config"
	"github.com/okian/queryai/internal/domain/chat"
	"github.com/okian/queryai/internal/domain/chunker"
	"github.com/okian/queryai/internal/domain/decision"
	"github.com/okian/queryai/internal/domain/parser"
	"github.com/okian/queryai/internal/domain/retrieval"
	"github.com/okian/queryai/pkg/logger"
	"github.com/okian/queryai/pkg/metrics"
)

// HTTP server timeout constants. Model calls are slow, so writes get the
// LLM timeout on top of the base value.
const (
	readTimeout               = 30 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 120 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	tracerCloseTimeout        = 5 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

var errMissingAPIKey = errors.New("GEMINI_API_KEY (or GOOGLE_API_KEY) is not set")

func main() {
	if err := run(); err != nil {
		// Use stderr since the logger may not be initialized yet
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			logger.Get().Error(ctx, "logger sync failed", logger.Error(err))
		}
	}()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if cfg.GeminiAPIKey == "" {
		return errMissingAPIKey
	}

	tracer := newTracer(cfg)
	defer closeTracer(ctx, tracer)

	gen, emb, err := newModels(ctx, cfg, tracer)
	if err != nil {
		return err
	}

	svc, err := newService(ctx, cfg, gen, emb, tracer)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx, metrics.Default().RefreshInterval())
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout + cfg.LLMTimeout(),
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("model", cfg.ModelName),
			logger.String("vector_store", cfg.VectorStore),
			logger.String("memory_backend", cfg.MemoryBackend),
			logger.Bool("tracing", cfg.TracingEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newTracer returns the LangSmith client when a key is configured.
func newTracer(cfg *config.Config) tracing.Tracer {
	if !cfg.TracingEnabled() {
		return tracing.Noop{}
	}
	return tracing.NewLangSmith(cfg.LangSmithAPIKey,
		tracing.WithEndpoint(cfg.LangSmithEndpoint),
		tracing.WithProject(cfg.LangSmithProject),
	)
}

func closeTracer(ctx context.Context, t tracing.Tracer) {
	ls, ok := t.(*tracing.LangSmith)
	if !ok {
		return
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tracerCloseTimeout)
	defer cancel()
	if err := ls.Close(closeCtx); err != nil {
		logger.Get().Warn(ctx, "tracer did not flush", logger.Error(err))
	}
}

// newModels builds the Gemini generator and embedder.
func newModels(ctx context.Context, cfg *config.Config, tracer tracing.Tracer) (*llm.Gemini, *embedding.Gemini, error) {
	genOpts := []llm.Option{
		llm.WithModel(cfg.ModelName),
		llm.WithTimeout(cfg.LLMTimeout()),
		llm.WithTracer(tracer),
	}
	embOpts := []embedding.Option{
		embedding.WithModel(cfg.EmbeddingModel),
		embedding.WithTracer(tracer),
	}
	if cfg.EmbeddingDimensions > 0 {
		embOpts = append(embOpts, embedding.WithDimensions(cfg.EmbeddingDimensions))
	}
	if cfg.GeminiBaseURL != "" {
		genOpts = append(genOpts, llm.WithBaseURL(cfg.GeminiBaseURL))
		embOpts = append(embOpts, embedding.WithBaseURL(cfg.GeminiBaseURL))
	}

	gen, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, genOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create generator: %w", err)
	}
	emb, err := embedding.NewGemini(ctx, cfg.GeminiAPIKey, embOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return gen, emb, nil
}

// newService opens the configured stores and assembles the service.
func newService(ctx context.Context, cfg *config.Config, gen llm.Generator, emb embedding.Embedder, tracer tracing.Tracer) (*app.Service, error) {
	var store vectorstore.Store
	switch cfg.VectorStore {
	case config.BackendSQLite:
		s, err := vectorstore.NewSQLite(ctx, cfg.SQLitePath, vectorstore.WithCollection(cfg.CollectionName))
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		store = s
	default:
		store = vectorstore.NewMemory()
	}

	var chats chatstore.Store
	switch cfg.MemoryBackend {
	case config.BackendRedis:
		r, err := chatstore.NewRedis(ctx, chatstore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.ChatTTL(),
		}, chatstore.WithWindow(cfg.MaxContextMessages))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect chat memory: %w", err)
		}
		chats = r
	default:
		chats = chatstore.NewMemory(chatstore.WithWindow(cfg.MaxContextMessages))
	}

	return app.New(gen, emb,
		app.WithLogger(logger.Get().Named("service")),
		app.WithTracer(tracer),
		app.WithVectorStore(store, cfg.VectorStore),
		app.WithChatStore(chats),
		app.WithLoader(loader.New(loader.WithMaxBytes(cfg.MaxUploadBytes()))),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithJobLimit(cfg.JobLimit),
		app.WithContextWindow(cfg.MaxContextMessages),
		app.WithModelNames(cfg.ModelName, cfg.EmbeddingModel),
		app.WithSeedDocuments(cfg.SeedDocuments...),
		app.WithChunkerOptions(
			chunker.WithChunkSize(cfg.ChunkSize),
			chunker.WithChunkOverlap(cfg.ChunkOverlap),
		),
		app.WithParserOptions(parser.WithTemperature(cfg.ParserTemperature)),
		app.WithRetrievalOptions(
			retrieval.WithTopK(cfg.TopK),
			retrieval.WithScoreThreshold(cfg.ScoreThreshold),
			retrieval.WithPhraseCount(cfg.PhraseCount),
			retrieval.WithPerPhraseK(cfg.PerPhraseK),
			retrieval.WithMaxContextDocs(cfg.MaxContextDocs),
			retrieval.WithTemperature(cfg.AnswerTemperature),
		),
		app.WithDecisionOptions(
			decision.WithTemperature(cfg.DecisionTemperature),
			decision.WithDefaultPayout(int64(cfg.DefaultPayout)),
		),
		app.WithChatOptions(chat.WithTemperature(cfg.ChatTemperature)),
	), nil
}

// newHandler registers the API and documentation routes behind CORS.
func newHandler(ctx context.Context, cfg *config.Config, svc api.Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Register ReDoc under /docs and /redoc
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc,
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes()),
	)
	apiServer.Register(ctx, mux)

	return api.CORSMiddleware(cfg.CORSAllowedOrigins, mux)
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Stats updates the queue, worker, store and user gauges
			_ = svc.Stats(ctx)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
