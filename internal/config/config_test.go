package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/queryai/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8000")
			convey.So(cfg.ModelName, convey.ShouldEqual, "gemini-1.5-flash")
			convey.So(cfg.EmbeddingModel, convey.ShouldEqual, "gemini-embedding-001")
			convey.So(cfg.CollectionName, convey.ShouldEqual, "RAG_Collection")
			convey.So(cfg.TopK, convey.ShouldEqual, 5)
			convey.So(cfg.ScoreThreshold, convey.ShouldEqual, 0.7)
			convey.So(cfg.ChunkSize, convey.ShouldEqual, 1000)
			convey.So(cfg.ChunkOverlap, convey.ShouldEqual, 200)
			convey.So(cfg.MaxContextMessages, convey.ShouldEqual, 10)
			convey.So(cfg.ParserTemperature, convey.ShouldEqual, 0.2)
			convey.So(cfg.DecisionTemperature, convey.ShouldEqual, 0.1)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DefaultPayout, convey.ShouldEqual, 50_000)
			convey.So(cfg.JobLimit, convey.ShouldEqual, 10_000)
			convey.So(cfg.TracingEnabled(), convey.ShouldBeFalse)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then derived durations should follow the fields", func() {
			cfg.ChatTTLMinutes = 5
			convey.So(cfg.LLMTimeout(), convey.ShouldEqual, 60*time.Second)
			convey.So(cfg.ChatTTL(), convey.ShouldEqual, 5*time.Minute)
			convey.So(cfg.MaxUploadBytes(), convey.ShouldEqual, int64(20<<20))
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs that break an invariant", t, func() {
		cases := map[string]func(c *config.Config){
			"empty addr":        func(c *config.Config) { c.Addr = "" },
			"zero chunk size":   func(c *config.Config) { c.ChunkSize = 0 },
			"overlap too large": func(c *config.Config) { c.ChunkOverlap = c.ChunkSize },
			"negative overlap":  func(c *config.Config) { c.ChunkOverlap = -1 },
			"threshold above 1": func(c *config.Config) { c.ScoreThreshold = 1.5 },
			"zero top k":        func(c *config.Config) { c.TopK = 0 },
			"zero window":       func(c *config.Config) { c.MaxContextMessages = 0 },
			"no workers":        func(c *config.Config) { c.WorkerCount = 0 },
			"zero job limit":    func(c *config.Config) { c.JobLimit = 0 },
			"unknown memory":    func(c *config.Config) { c.MemoryBackend = "etcd" },
			"unknown store":     func(c *config.Config) { c.VectorStore = "chroma" },
			"unknown format":    func(c *config.Config) { c.LogFormat = "xml" },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)

			convey.Convey("Then validation should fail for "+name, func() {
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
