package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should use the default refresh interval", func() {
				So(manager, ShouldNotBeNil)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("pfx"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRefreshInterval(3*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.queriesTotal.WithLabelValues("rag").Inc()

			Convey("Then names and labels should follow the options", func() {
				So(manager.RefreshInterval(), ShouldEqual, 3*time.Second)
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_pfx_queries_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When metrics are disabled", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(registry))
			manager.documentsIngested.Inc()

			Convey("Then nothing should reach the given registry", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording query pipeline metrics", func() {
			before := testutil.ToFloat64(globalManager.decisionsTotal.WithLabelValues("APPROVED"))
			RecordDecision("APPROVED")
			RecordQuery("claim_decision", 12.5)
			RecordParserFallback()
			RecordDecisionFallback()

			Convey("Then counters should move", func() {
				So(testutil.ToFloat64(globalManager.decisionsTotal.WithLabelValues("APPROVED")), ShouldEqual, before+1)
			})
		})

		Convey("When recording model call metrics", func() {
			before := testutil.ToFloat64(globalManager.llmTokens.WithLabelValues("prompt"))
			RecordLLMRequest("decision", "success", 120)
			RecordLLMTokens(40, 10)
			RecordLLMTokens(0, 0)
			RecordEmbedding("success", 3, 30)

			Convey("Then token counters should add up", func() {
				So(testutil.ToFloat64(globalManager.llmTokens.WithLabelValues("prompt")), ShouldEqual, before+40)
			})
		})

		Convey("When recording ingestion metrics", func() {
			before := testutil.ToFloat64(globalManager.chunksIndexed)
			RecordDocumentIngested(7)
			RecordDocumentDuplicate()
			RecordDocumentFailed("load")
			UpdateVectorStoreSize(7)
			RecordRetrieval(3, 4)

			Convey("Then chunk counts should be added", func() {
				So(testutil.ToFloat64(globalManager.chunksIndexed), ShouldEqual, before+7)
				So(testutil.ToFloat64(globalManager.vectorStoreSize), ShouldEqual, 7)
			})
		})

		Convey("When recording operational metrics", func() {
			So(func() {
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerCount(4)
				UpdateWorkerActiveCount(2)
				RecordWorkerProcessingLatency(15)
				RecordWorkerError()
				UpdateChatActiveUsers(3)
				RecordChatMessage()
				RecordTracingRun("sent")
				RecordHTTPRequest("/query", "POST", "200")
				RecordHTTPRequestDuration("/query", "POST", "200", 5)
				RecordErrorByComponent("http", "client_error")
				RecordErrorByType("client_error", "warning")
				RecordErrorByEndpoint("/query", "POST", "client_error")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})

		Convey("When gathering the custom registry", func() {
			families, err := GetRegistry().Gather()

			Convey("Then the queryai families should be present", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(Default(), ShouldEqual, globalManager)
			})
		})
	})
}
