// Package metrics provides Prometheus metrics for the xpmeter exporter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the exporter.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ingestion
	snapshotsReceived  prometheus.Counter
	snapshotsDuplicate prometheus.Counter
	killCountsReceived prometheus.Counter
	jobsProcessed      prometheus.Counter

	// Measurement building
	recordsBuilt     *prometheus.CounterVec
	recordsUnchanged prometheus.Counter
	buildErrors      *prometheus.CounterVec
	buildLatency     prometheus.Histogram

	// Sink
	sinkWrites       prometheus.Counter
	sinkErrors       *prometheus.CounterVec
	sinkLatency      prometheus.Histogram
	sinkPendingLines prometheus.Gauge
	sinkRetries      prometheus.Counter

	// Price lookups
	priceCacheHits   prometheus.Counter
	priceCacheMisses prometheus.Counter

	// Series store
	seriesTracked      prometheus.Gauge
	storeUpsertLatency prometheus.Histogram

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec
	errorRateByType     *prometheus.CounterVec

	// Errors by component
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "xpmeter",
		subsystem:        "exporter",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.snapshotsReceived = m.counter("snapshots_received_total", "Total number of state snapshots accepted for processing")
	m.snapshotsDuplicate = m.counter("snapshots_duplicate_total", "Total number of duplicate snapshots rejected by id")
	m.killCountsReceived = m.counter("killcounts_received_total", "Total number of kill-count events accepted for processing")
	m.jobsProcessed = m.counter("jobs_processed_total", "Total number of jobs fully processed by workers")

	m.recordsBuilt = m.counterVec("records_built_total", "Total number of measurement records built", "measurement")
	m.recordsUnchanged = m.counter("records_unchanged_total", "Total number of records skipped because the series did not change")
	m.buildErrors = m.counterVec("build_errors_total", "Total number of measurement build failures", "kind")
	m.buildLatency = m.histogram("build_latency_milliseconds", "Time to build all records for one job in milliseconds")

	m.sinkWrites = m.counter("sink_writes_total", "Total number of successful batch writes to the time-series backend")
	m.sinkErrors = m.counterVec("sink_errors_total", "Total number of failed writes to the time-series backend", "reason")
	m.sinkLatency = m.histogram("sink_write_latency_milliseconds", "Batch write latency in milliseconds")
	m.sinkPendingLines = m.gauge("sink_pending_lines", "Number of encoded lines waiting for the next flush")
	m.sinkRetries = m.counter("sink_retries_total", "Total number of retried backend writes")

	m.priceCacheHits = m.counter("price_cache_hits_total", "Total number of market price cache hits")
	m.priceCacheMisses = m.counter("price_cache_misses_total", "Total number of market price cache misses")

	m.seriesTracked = m.gauge("series_tracked", "Number of distinct series held by the series store")
	m.storeUpsertLatency = m.histogram("store_upsert_latency_milliseconds", "Series store upsert latency in milliseconds")

	m.queueSize = m.gauge("queue_size", "Current size of the job queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the job queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Job queue utilization between 0 and 1")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of enqueued jobs")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of dequeued jobs")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueues")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds")

	m.workerCount = m.gauge("worker_count", "Current number of workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Per-job worker processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Total number of worker errors")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint, method and error type", "endpoint", "method", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap memory in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause time in milliseconds")
}

// Ingestion Functions.

// RecordSnapshotReceived increments the accepted snapshot counter.
func RecordSnapshotReceived() {
	globalManager.snapshotsReceived.Inc()
}

// RecordSnapshotDuplicate increments the duplicate snapshot counter.
func RecordSnapshotDuplicate() {
	globalManager.snapshotsDuplicate.Inc()
}

// RecordKillCountReceived increments the accepted kill-count counter.
func RecordKillCountReceived() {
	globalManager.killCountsReceived.Inc()
}

// RecordJobProcessed increments the processed job counter.
func RecordJobProcessed() {
	globalManager.jobsProcessed.Inc()
}

// Build Functions.

// RecordRecordBuilt increments the built record counter for a measurement.
func RecordRecordBuilt(measurement string) {
	globalManager.recordsBuilt.WithLabelValues(measurement).Inc()
}

// RecordRecordUnchanged increments the unchanged record counter.
func RecordRecordUnchanged() {
	globalManager.recordsUnchanged.Inc()
}

// RecordBuildError increments the build error counter for an error kind.
func RecordBuildError(kind string) {
	globalManager.buildErrors.WithLabelValues(kind).Inc()
}

// RecordBuildLatency records the time spent building one job.
func RecordBuildLatency(latencyMs float64) {
	globalManager.buildLatency.Observe(latencyMs)
}

// Sink Functions.

// RecordSinkWrite increments the successful write counter.
func RecordSinkWrite() {
	globalManager.sinkWrites.Inc()
}

// RecordSinkError increments the failed write counter.
func RecordSinkError(reason string) {
	globalManager.sinkErrors.WithLabelValues(reason).Inc()
}

// RecordSinkLatency records a batch write latency.
func RecordSinkLatency(latencyMs float64) {
	globalManager.sinkLatency.Observe(latencyMs)
}

// UpdateSinkPendingLines sets the number of buffered lines.
func UpdateSinkPendingLines(count int) {
	globalManager.sinkPendingLines.Set(float64(count))
}

// RecordSinkRetry increments the retry counter.
func RecordSinkRetry() {
	globalManager.sinkRetries.Inc()
}

// Price Functions.

// RecordPriceCacheHit increments the price cache hit counter.
func RecordPriceCacheHit() {
	globalManager.priceCacheHits.Inc()
}

// RecordPriceCacheMiss increments the price cache miss counter.
func RecordPriceCacheMiss() {
	globalManager.priceCacheMisses.Inc()
}

// Store Functions.

// UpdateSeriesTracked sets the number of tracked series.
func UpdateSeriesTracked(count int) {
	globalManager.seriesTracked.Set(float64(count))
}

// RecordStoreUpsertLatency records a store upsert latency.
func RecordStoreUpsertLatency(latencyMs float64) {
	globalManager.storeUpsertLatency.Observe(latencyMs)
}

// Queue Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
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

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Functions.

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP Functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Functions.

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
