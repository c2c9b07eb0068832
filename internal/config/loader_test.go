package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/queryai/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"QUERYAI_CONFIG",
	"QUERYAI_ADDR",
	"QUERYAI_QUEUE_SIZE",
	"QUERYAI_WORKER_COUNT",
	"QUERYAI_TOP_K",
	"QUERYAI_SCORE_THRESHOLD",
	"QUERYAI_MEMORY_BACKEND",
	"QUERYAI_SEED_DOCUMENTS",
	"QUERYAI_CORS_ALLOWED_ORIGINS",
	"QUERYAI_GEMINI_API_KEY",
	"QUERYAI_CHUNK_OVERLAP",
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"LANGSMITH_API_KEY",
	"LANGSMITH_PROJECT",
	"LANGSMITH_ENDPOINT",
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8000")
				convey.So(cfg.GeminiAPIKey, convey.ShouldBeEmpty)
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"*"})
			})
		})

		convey.Convey("When loading config with prefixed environment variables", func() {
			_ = os.Setenv("QUERYAI_ADDR", ":8080")
			_ = os.Setenv("QUERYAI_QUEUE_SIZE", "50")
			_ = os.Setenv("QUERYAI_WORKER_COUNT", "3")
			_ = os.Setenv("QUERYAI_SCORE_THRESHOLD", "0.55")
			_ = os.Setenv("QUERYAI_MEMORY_BACKEND", "redis")
			_ = os.Setenv("QUERYAI_SEED_DOCUMENTS", "docs/policy.pdf, docs/faq.md")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 50)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.ScoreThreshold, convey.ShouldEqual, 0.55)
				convey.So(cfg.MemoryBackend, convey.ShouldEqual, "redis")
				convey.So(cfg.SeedDocuments, convey.ShouldResemble, []string{"docs/policy.pdf", "docs/faq.md"})
			})
		})

		convey.Convey("When loading well-known credential variables", func() {
			_ = os.Setenv("GOOGLE_API_KEY", "google-key")
			_ = os.Setenv("LANGSMITH_API_KEY", "ls-key")
			_ = os.Setenv("LANGSMITH_PROJECT", "claims")

			cfg, err := config.Load(ctx)

			convey.Convey("Then GOOGLE_API_KEY should be used as the Gemini key", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.GeminiAPIKey, convey.ShouldEqual, "google-key")
				convey.So(cfg.LangSmithAPIKey, convey.ShouldEqual, "ls-key")
				convey.So(cfg.LangSmithProject, convey.ShouldEqual, "claims")
				convey.So(cfg.TracingEnabled(), convey.ShouldBeTrue)
			})

			convey.Convey("And GEMINI_API_KEY should win over every other source", func() {
				_ = os.Setenv("GEMINI_API_KEY", "gemini-key")
				_ = os.Setenv("QUERYAI_GEMINI_API_KEY", "prefixed-key")

				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.GeminiAPIKey, convey.ShouldEqual, "gemini-key")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
queue_size: 300
worker_count: 24
top_k: 8
vector_store: sqlite
cors_allowed_origins:
  - https://claims.example.com
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("QUERYAI_CONFIG", tmpFile)
			_ = os.Setenv("QUERYAI_WORKER_COUNT", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.TopK, convey.ShouldEqual, 8)
				convey.So(cfg.VectorStore, convey.ShouldEqual, "sqlite")
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"https://claims.example.com"})
				convey.So(cfg.ChunkSize, convey.ShouldEqual, 1000)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("QUERYAI_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("QUERYAI_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("QUERYAI_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			})
		})

		convey.Convey("When the overlap is not smaller than the chunk size", func() {
			_ = os.Setenv("QUERYAI_CHUNK_OVERLAP", "1000")

			_, err := config.Load(ctx)

			convey.Convey("Then validation should reject it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, v := range configEnvVars {
		_ = os.Unsetenv(v)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "queryai-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = tmpFile.Close() }()

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
