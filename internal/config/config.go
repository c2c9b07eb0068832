// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and the environment on top of the defaults.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Backends for chat memory and the vector store.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// Gemini settings.
	GeminiAPIKey        string  `koanf:"gemini_api_key"`
	GeminiBaseURL       string  `koanf:"gemini_base_url"`
	ModelName           string  `koanf:"model_name"`
	EmbeddingModel      string  `koanf:"embedding_model"`
	EmbeddingDimensions int     `koanf:"embedding_dimensions"`
	ParserTemperature   float64 `koanf:"parser_temperature"`
	AnswerTemperature   float64 `koanf:"answer_temperature"`
	DecisionTemperature float64 `koanf:"decision_temperature"`
	ChatTemperature     float64 `koanf:"chat_temperature"`
	LLMTimeoutSeconds   int     `koanf:"llm_timeout_seconds"`

	// LangSmith tracing. Disabled when the key is empty.
	LangSmithAPIKey   string `koanf:"langsmith_api_key"`
	LangSmithEndpoint string `koanf:"langsmith_endpoint"`
	LangSmithProject  string `koanf:"langsmith_project"`

	// Chat memory.
	MaxContextMessages int    `koanf:"max_context_messages"`
	MemoryBackend      string `koanf:"memory_backend"`
	RedisAddr          string `koanf:"redis_addr"`
	RedisPassword      string `koanf:"redis_password"`
	RedisDB            int    `koanf:"redis_db"`
	ChatTTLMinutes     int    `koanf:"chat_ttl_minutes"`

	// Vector store and retrieval.
	VectorStore    string  `koanf:"vector_store"`
	SQLitePath     string  `koanf:"sqlite_path"`
	CollectionName string  `koanf:"collection_name"`
	TopK           int     `koanf:"top_k"`
	ScoreThreshold float64 `koanf:"score_threshold"`
	PhraseCount    int     `koanf:"phrase_count"`
	PerPhraseK     int     `koanf:"per_phrase_k"`
	MaxContextDocs int     `koanf:"max_context_docs"`

	// Splitter.
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`

	// Ingestion pipeline.
	QueueSize     int      `koanf:"queue_size"`
	WorkerCount   int      `koanf:"worker_count"`
	DedupeSize    int      `koanf:"dedupe_size"`
	JobLimit      int      `koanf:"job_limit"`
	SeedDocuments []string `koanf:"seed_documents"`

	// HTTP surface.
	MaxUploadMB        int      `koanf:"max_upload_mb"`
	RateLimitRPS       float64  `koanf:"rate_limit_rps"`
	RateLimitBurst     int      `koanf:"rate_limit_burst"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// DefaultPayout is the suggested claim amount (INR) in the decision prompt.
	DefaultPayout int `koanf:"default_payout"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":8000",
		ModelName:           "gemini-1.5-flash",
		EmbeddingModel:      "gemini-embedding-001",
		ParserTemperature:   0.2,
		AnswerTemperature:   0.2,
		DecisionTemperature: 0.1,
		ChatTemperature:     0.7,
		LLMTimeoutSeconds:   60,
		LangSmithEndpoint:   "https://api.smith.langchain.com",
		LangSmithProject:    "query-backend",
		MaxContextMessages:  10,
		MemoryBackend:       BackendMemory,
		RedisAddr:           "localhost:6379",
		VectorStore:         BackendMemory,
		SQLitePath:          "queryai.db",
		CollectionName:      "RAG_Collection",
		TopK:                5,
		ScoreThreshold:      0.7,
		PhraseCount:         3,
		PerPhraseK:          2,
		MaxContextDocs:      5,
		ChunkSize:           1000,
		ChunkOverlap:        200,
		QueueSize:           1000,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          10_000,
		JobLimit:            10_000,
		MaxUploadMB:         20,
		RateLimitRPS:        10,
		RateLimitBurst:      20,
		CORSAllowedOrigins:  []string{"*"},
		DefaultPayout:       50_000,
	}
}

// LLMTimeout returns the per call model timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// ChatTTL returns the conversation expiry, zero meaning none.
func (c *Config) ChatTTL() time.Duration {
	return time.Duration(c.ChatTTLMinutes) * time.Minute
}

// MaxUploadBytes returns the multipart size limit.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// TracingEnabled reports whether runs are sent to LangSmith.
func (c *Config) TracingEnabled() bool {
	return c.LangSmithAPIKey != ""
}

// Validate checks the invariants between fields.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig)
	case c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize:
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", ErrInvalidConfig)
	case c.ScoreThreshold < 0 || c.ScoreThreshold > 1:
		return fmt.Errorf("%w: score_threshold must be in [0, 1]", ErrInvalidConfig)
	case c.TopK <= 0:
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig)
	case c.MaxContextMessages <= 0:
		return fmt.Errorf("%w: max_context_messages must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0 || c.WorkerCount <= 0:
		return fmt.Errorf("%w: queue_size and worker_count must be positive", ErrInvalidConfig)
	case c.JobLimit <= 0:
		return fmt.Errorf("%w: job_limit must be positive", ErrInvalidConfig)
	}

	if c.MemoryBackend != BackendMemory && c.MemoryBackend != BackendRedis {
		return fmt.Errorf("%w: unknown memory_backend %q", ErrInvalidConfig, c.MemoryBackend)
	}
	if c.VectorStore != BackendMemory && c.VectorStore != BackendSQLite {
		return fmt.Errorf("%w: unknown vector_store %q", ErrInvalidConfig, c.VectorStore)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
