// Package metrics provides Prometheus metrics for the chart service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Every metric is named tunechart_charts_<name>.
const (
	namespace = "tunechart"
	subsystem = "charts"
)

// Manager manages all Prometheus metrics for the chart service.
type Manager struct {
	registry prometheus.Registerer

	// Listening source
	memberFetchLatency  prometheus.Histogram
	memberFetchFailures *prometheus.CounterVec
	sourceRequests      *prometheus.CounterVec
	sourceRetries       *prometheus.CounterVec
	circuitBreakerState *prometheus.GaugeVec

	// Aggregation and chart writes
	aggregationRuns     *prometheus.CounterVec
	chartEntriesWritten *prometheus.CounterVec
	chartWriteLatency   prometheus.Histogram
	backfillWeeks       *prometheus.CounterVec

	// Derived caches
	invalidationFailures prometheus.Counter
	statsCacheLookups    *prometheus.CounterVec
	recordsRuns          *prometheus.CounterVec
	recordsDuration      prometheus.Histogram

	// Fetch queue and worker pool
	queueSize               prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueDequeued           prometheus.Counter
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// Operational
	groupsTotal prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
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
	m := &Manager{registry: prometheus.DefaultRegisterer}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	latencyBuckets := []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

	m.memberFetchLatency = m.histogram("member_fetch_latency_milliseconds",
		"Latency of fetching one member's weekly listening data", latencyBuckets)
	m.memberFetchFailures = m.counterVec("member_fetch_failures_total",
		"Member fetches that failed, by reason", "reason")
	m.sourceRequests = m.counterVec("source_requests_total",
		"Listening source requests by method and outcome", "method", "outcome")
	m.sourceRetries = m.counterVec("source_retries_total",
		"Listening source retries by reason", "reason")
	m.circuitBreakerState = m.gaugeVec("circuit_breaker_state",
		"Circuit breaker state (0=closed, 1=half-open, 2=open)", "name")

	m.aggregationRuns = m.counterVec("aggregation_runs_total",
		"Weekly aggregation runs by outcome", "outcome")
	m.chartEntriesWritten = m.counterVec("chart_entries_written_total",
		"Chart entry records written, by category", "category")
	m.chartWriteLatency = m.histogram("chart_write_latency_milliseconds",
		"Latency of the per-category chart replace transaction", latencyBuckets)
	m.backfillWeeks = m.counterVec("backfill_weeks_total",
		"Weeks processed by range regeneration, by outcome", "outcome")

	m.invalidationFailures = m.counter("stats_invalidation_failures_total",
		"Entry stats invalidations that failed and were skipped")
	m.statsCacheLookups = m.counterVec("stats_cache_lookups_total",
		"Entry stats cache reads by result", "result")
	m.recordsRuns = m.counterVec("records_runs_total",
		"Records calculations by mode and outcome", "mode", "outcome")
	m.recordsDuration = m.histogram("records_duration_milliseconds",
		"Duration of a records calculation", latencyBuckets)

	m.queueSize = m.gauge("fetch_queue_size", "Member fetch jobs waiting in the queue")
	m.queueEnqueued = m.counter("fetch_queue_enqueued_total", "Member fetch jobs enqueued")
	m.queueDequeued = m.counter("fetch_queue_dequeued_total", "Member fetch jobs dequeued")
	m.workerActiveCount = m.gauge("fetch_workers_active", "Fetch workers currently running")
	m.workerProcessingLatency = m.histogram("fetch_worker_processing_latency_milliseconds",
		"Time a worker spends on one member job", latencyBuckets)

	m.groupsTotal = m.gauge("groups_total", "Number of configured groups")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", latencyBuckets, "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds",
		"Latency of operations that ended in an error", latencyBuckets, "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Listening source.

// RecordMemberFetchLatency records how long one member fetch took.
func RecordMemberFetchLatency(latencyMs float64) {
	globalManager.memberFetchLatency.Observe(latencyMs)
}

// RecordMemberFetchFailure counts a failed member fetch.
func RecordMemberFetchFailure(reason string) {
	globalManager.memberFetchFailures.WithLabelValues(reason).Inc()
}

// RecordSourceRequest counts a listening source request.
func RecordSourceRequest(method, outcome string) {
	globalManager.sourceRequests.WithLabelValues(method, outcome).Inc()
}

// RecordSourceRetry counts a listening source retry.
func RecordSourceRetry(reason string) {
	globalManager.sourceRetries.WithLabelValues(reason).Inc()
}

// UpdateCircuitBreakerState sets the numeric breaker state.
func UpdateCircuitBreakerState(name string, state float64) {
	globalManager.circuitBreakerState.WithLabelValues(name).Set(state)
}

// Aggregation and chart writes.

// RecordAggregationRun counts an aggregation run by outcome.
func RecordAggregationRun(outcome string) {
	globalManager.aggregationRuns.WithLabelValues(outcome).Inc()
}

// RecordChartEntriesWritten adds n written chart entry records.
func RecordChartEntriesWritten(category string, n int) {
	globalManager.chartEntriesWritten.WithLabelValues(category).Add(float64(n))
}

// RecordChartWriteLatency records the duration of a chart replace transaction.
func RecordChartWriteLatency(latencyMs float64) {
	globalManager.chartWriteLatency.Observe(latencyMs)
}

// RecordBackfillWeek counts a week processed by range regeneration.
func RecordBackfillWeek(outcome string) {
	globalManager.backfillWeeks.WithLabelValues(outcome).Inc()
}

// Derived caches.

// RecordInvalidationFailure counts a skipped stats invalidation.
func RecordInvalidationFailure() {
	globalManager.invalidationFailures.Inc()
}

// RecordStatsCacheLookup counts an entry stats read ("hit" or "recompute").
func RecordStatsCacheLookup(result string) {
	globalManager.statsCacheLookups.WithLabelValues(result).Inc()
}

// RecordRecordsRun counts a records calculation.
func RecordRecordsRun(mode, outcome string) {
	globalManager.recordsRuns.WithLabelValues(mode, outcome).Inc()
}

// RecordRecordsDuration records a records calculation duration.
func RecordRecordsDuration(latencyMs float64) {
	globalManager.recordsDuration.Observe(latencyMs)
}

// Queue and worker pool.

// UpdateQueueSize sets the number of queued fetch jobs.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// UpdateWorkerActiveCount sets the number of running fetch workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// UpdateGroupsTotal sets the number of configured groups.
func UpdateGroupsTotal(count int) {
	globalManager.groupsTotal.Set(float64(count))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

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

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

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
