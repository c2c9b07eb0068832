// Package metrics provides Prometheus metrics for the query backend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the query backend.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Query pipeline
	queriesTotal      *prometheus.CounterVec
	queryLatency      *prometheus.HistogramVec
	parserFallbacks   prometheus.Counter
	decisionsTotal    *prometheus.CounterVec
	decisionFallbacks prometheus.Counter

	// Model calls
	llmRequests   *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	llmTokens     *prometheus.CounterVec
	embedRequests *prometheus.CounterVec
	embedTexts    prometheus.Counter
	embedLatency  prometheus.Histogram

	// Retrieval and storage
	retrievalHits    prometheus.Histogram
	retrievalLatency prometheus.Histogram
	vectorStoreSize  prometheus.Gauge

	// Ingestion
	documentsIngested  prometheus.Counter
	documentsDuplicate prometheus.Counter
	documentsFailed    *prometheus.CounterVec
	chunksIndexed      prometheus.Counter

	// Chat
	chatActiveUsers prometheus.Gauge
	chatMessages    prometheus.Counter

	// Tracing
	tracingRuns *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "queryai",
		subsystem:        "backend",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	// A disabled manager still hands out collectors, they just go nowhere.
	if !m.enabled {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval returns how often gauge updaters should run.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.queriesTotal = auto.NewCounterVec(m.counterOpts("queries_total",
		"Total number of handled queries by kind"), []string{"kind"})
	m.queryLatency = auto.NewHistogramVec(m.histogramOpts("query_latency_milliseconds",
		"End to end query latency in milliseconds by kind", m.histogramBuckets), []string{"kind"})
	m.parserFallbacks = auto.NewCounter(m.counterOpts("parser_fallbacks_total",
		"Number of queries parsed with the fallback structure"))
	m.decisionsTotal = auto.NewCounterVec(m.counterOpts("decisions_total",
		"Claim decisions by outcome"), []string{"decision"})
	m.decisionFallbacks = auto.NewCounter(m.counterOpts("decision_fallbacks_total",
		"Claim decisions that fell back because the model answer could not be used"))

	m.llmRequests = auto.NewCounterVec(m.counterOpts("llm_requests_total",
		"LLM generation calls by operation and outcome"), []string{"operation", "outcome"})
	m.llmLatency = auto.NewHistogramVec(m.histogramOpts("llm_latency_milliseconds",
		"LLM generation latency in milliseconds", m.histogramBuckets), []string{"operation"})
	m.llmTokens = auto.NewCounterVec(m.counterOpts("llm_tokens_total",
		"Tokens consumed by LLM calls"), []string{"kind"})
	m.embedRequests = auto.NewCounterVec(m.counterOpts("embedding_requests_total",
		"Embedding calls by outcome"), []string{"outcome"})
	m.embedTexts = auto.NewCounter(m.counterOpts("embedding_texts_total",
		"Number of texts embedded"))
	m.embedLatency = auto.NewHistogram(m.histogramOpts("embedding_latency_milliseconds",
		"Embedding call latency in milliseconds", m.histogramBuckets))

	m.retrievalHits = auto.NewHistogram(m.histogramOpts("retrieval_hits",
		"Number of chunks returned per retrieval", []float64{0, 1, 2, 3, 5, 8, 13, 21}))
	m.retrievalLatency = auto.NewHistogram(m.histogramOpts("retrieval_latency_milliseconds",
		"Retrieval latency in milliseconds", m.histogramBuckets))
	m.vectorStoreSize = auto.NewGauge(m.gaugeOpts("vector_store_chunks",
		"Number of chunks held by the vector store"))

	m.documentsIngested = auto.NewCounter(m.counterOpts("documents_ingested_total",
		"Documents indexed into the vector store"))
	m.documentsDuplicate = auto.NewCounter(m.counterOpts("documents_duplicate_total",
		"Documents skipped because their content was already seen"))
	m.documentsFailed = auto.NewCounterVec(m.counterOpts("documents_failed_total",
		"Documents that could not be loaded or indexed"), []string{"stage"})
	m.chunksIndexed = auto.NewCounter(m.counterOpts("chunks_indexed_total",
		"Chunks embedded and stored"))

	m.chatActiveUsers = auto.NewGauge(m.gaugeOpts("chat_active_users",
		"Users with stored conversation history"))
	m.chatMessages = auto.NewCounter(m.counterOpts("chat_messages_total",
		"Chat messages answered"))

	m.tracingRuns = auto.NewCounterVec(m.counterOpts("tracing_runs_total",
		"LangSmith run submissions by outcome"), []string{"outcome"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Current size of the ingestion queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum ingestion queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio",
		"Queue utilization ratio (current size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total",
		"Total number of jobs enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total",
		"Total number of jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total",
		"Total number of rejected enqueues"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count",
		"Configured number of ingestion workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count",
		"Number of workers currently processing a job"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Worker job latency in milliseconds", m.histogramBuckets))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total",
		"Total number of failed jobs"))

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total",
		"Total number of errors by type"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Total number of errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Default returns the process wide manager.
func Default() *Manager {
	return globalManager
}

// RecordQuery counts a handled query and its latency.
func RecordQuery(kind string, latencyMs float64) {
	globalManager.queriesTotal.WithLabelValues(kind).Inc()
	globalManager.queryLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordParserFallback counts a query parsed with the fallback structure.
func RecordParserFallback() {
	globalManager.parserFallbacks.Inc()
}

// RecordDecision counts a claim decision by outcome.
func RecordDecision(decision string) {
	globalManager.decisionsTotal.WithLabelValues(decision).Inc()
}

// RecordDecisionFallback counts a decision built from the fallback structure.
func RecordDecisionFallback() {
	globalManager.decisionFallbacks.Inc()
}

// RecordLLMRequest records one generation call.
func RecordLLMRequest(operation, outcome string, latencyMs float64) {
	globalManager.llmRequests.WithLabelValues(operation, outcome).Inc()
	globalManager.llmLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordLLMTokens adds prompt and completion token counts.
func RecordLLMTokens(prompt, completion int) {
	if prompt > 0 {
		globalManager.llmTokens.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		globalManager.llmTokens.WithLabelValues("completion").Add(float64(completion))
	}
}

// RecordEmbedding records one embedding call.
func RecordEmbedding(outcome string, texts int, latencyMs float64) {
	globalManager.embedRequests.WithLabelValues(outcome).Inc()
	globalManager.embedTexts.Add(float64(texts))
	globalManager.embedLatency.Observe(latencyMs)
}

// RecordRetrieval records the hit count and latency of one search.
func RecordRetrieval(hits int, latencyMs float64) {
	globalManager.retrievalHits.Observe(float64(hits))
	globalManager.retrievalLatency.Observe(latencyMs)
}

// UpdateVectorStoreSize sets the number of stored chunks.
func UpdateVectorStoreSize(count int) {
	globalManager.vectorStoreSize.Set(float64(count))
}

// RecordDocumentIngested counts an indexed document and its chunks.
func RecordDocumentIngested(chunks int) {
	globalManager.documentsIngested.Inc()
	globalManager.chunksIndexed.Add(float64(chunks))
}

// RecordDocumentDuplicate counts a document rejected as already seen.
func RecordDocumentDuplicate() {
	globalManager.documentsDuplicate.Inc()
}

// RecordDocumentFailed counts a document that failed at the given stage.
func RecordDocumentFailed(stage string) {
	globalManager.documentsFailed.WithLabelValues(stage).Inc()
}

// UpdateChatActiveUsers sets the number of users with history.
func UpdateChatActiveUsers(count int) {
	globalManager.chatActiveUsers.Set(float64(count))
}

// RecordChatMessage counts an answered chat message.
func RecordChatMessage() {
	globalManager.chatMessages.Inc()
}

// RecordTracingRun counts a tracing submission by outcome (sent, failed, dropped).
func RecordTracingRun(outcome string) {
	globalManager.tracingRuns.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
