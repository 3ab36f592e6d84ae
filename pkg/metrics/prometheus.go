// Package metrics provides Prometheus metrics for the sale reconstruction service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Reconstruction
	reconstructions       *prometheus.CounterVec
	reconstructionErrors  *prometheus.CounterVec
	reconstructionLatency prometheus.Histogram
	partCorrections       prometheus.Counter
	midEvolutions         prometheus.Counter
	negativeBreedCounts   prometheus.Counter
	activitiesReordered   prometheus.Counter
	xpUnderflows          prometheus.Counter

	// Ingress
	salesDuplicate prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	queueRedeliveries  prometheus.Counter
	queueDeadLetters   prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Part catalog
	catalogRefreshes *prometheus.CounterVec
	catalogParts     prometheus.Gauge
	catalogMisses    prometheus.Counter

	// Chain data provider
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerRetries  *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec

	// Sale store
	storeLatency    *prometheus.HistogramVec
	storeDuplicates prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// GetRegistry returns the registry the global manager registers on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// NewManager creates a manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "axiesales",
		subsystem:        "sales",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		// Collectors still exist so recording never panics, but nothing exposes them.
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
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

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
		Buckets:     m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.reconstructions = auto.NewCounterVec(
		m.counterOpts("reconstructions_total", "Sale messages handled, by outcome"),
		[]string{"outcome"},
	)
	m.reconstructionErrors = auto.NewCounterVec(
		m.counterOpts("reconstruction_errors_total", "Failed reconstructions, by processing step"),
		[]string{"step"},
	)
	m.reconstructionLatency = auto.NewHistogram(
		m.histogramOpts("reconstruction_latency_milliseconds", "End to end reconstruction latency in milliseconds"),
	)
	m.partCorrections = auto.NewCounter(
		m.counterOpts("part_corrections_total", "Part slots whose stage was re-evaluated"),
	)
	m.midEvolutions = auto.NewCounter(
		m.counterOpts("mid_evolutions_total", "Sales where a part was evolving at sale time"),
	)
	m.negativeBreedCounts = auto.NewCounter(
		m.counterOpts("negative_breed_counts_total", "Reconstructions that produced a negative breed count"),
	)
	m.activitiesReordered = auto.NewCounter(
		m.counterOpts("activities_reordered_total", "Activity logs that arrived out of order and were re-sorted"),
	)
	m.xpUnderflows = auto.NewCounter(
		m.counterOpts("xp_underflows_total", "Level estimates where earned XP exceeded the current total"),
	)

	m.salesDuplicate = auto.NewCounter(
		m.counterOpts("ingress_duplicates_total", "Sale messages rejected as already seen at ingress"),
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Messages waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Messages enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Messages dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Enqueue attempts rejected"))
	m.queueRedeliveries = auto.NewCounter(m.counterOpts("queue_redeliveries_total", "Messages scheduled for redelivery"))
	m.queueDeadLetters = auto.NewCounter(m.counterOpts("queue_dead_letters_total", "Messages dropped after the last delivery attempt"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers currently processing a message"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds"),
	)
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Messages that failed processing"))

	m.catalogRefreshes = auto.NewCounterVec(
		m.counterOpts("catalog_refreshes_total", "Part catalog resyncs, by result"),
		[]string{"result"},
	)
	m.catalogParts = auto.NewGauge(m.gaugeOpts("catalog_parts", "Parts in the catalog after the last resync"))
	m.catalogMisses = auto.NewCounter(m.counterOpts("catalog_misses_total", "Part lookups not found in the catalog"))

	m.providerRequests = auto.NewCounterVec(
		m.counterOpts("provider_requests_total", "Chain data provider calls, by operation and result"),
		[]string{"operation", "result"},
	)
	m.providerLatency = auto.NewHistogramVec(
		m.histogramOpts("provider_latency_milliseconds", "Chain data provider call latency in milliseconds"),
		[]string{"operation"},
	)
	m.providerRetries = auto.NewCounterVec(
		m.counterOpts("provider_retries_total", "Chain data provider retries, by operation"),
		[]string{"operation"},
	)
	m.breakerState = auto.NewGaugeVec(
		m.gaugeOpts("circuit_breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)"),
		[]string{"name"},
	)

	m.storeLatency = auto.NewHistogramVec(
		m.histogramOpts("store_latency_milliseconds", "Sale store operation latency in milliseconds"),
		[]string{"operation"},
	)
	m.storeDuplicates = auto.NewCounter(
		m.counterOpts("store_duplicates_total", "Inserts skipped because the sale was already stored"),
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordReconstruction counts a handled sale by outcome.
func RecordReconstruction(outcome string) {
	globalManager.reconstructions.WithLabelValues(outcome).Inc()
}

// RecordReconstructionError counts a failed reconstruction by step.
func RecordReconstructionError(step string) {
	globalManager.reconstructionErrors.WithLabelValues(step).Inc()
}

// RecordReconstructionLatency records reconstruction latency in milliseconds.
func RecordReconstructionLatency(latencyMs float64) {
	globalManager.reconstructionLatency.Observe(latencyMs)
}

// RecordPartCorrections adds n re-evaluated part slots.
func RecordPartCorrections(n int) {
	if n > 0 {
		globalManager.partCorrections.Add(float64(n))
	}
}

func RecordMidEvolution()        { globalManager.midEvolutions.Inc() }
func RecordNegativeBreedCount()  { globalManager.negativeBreedCounts.Inc() }
func RecordActivitiesReordered() { globalManager.activitiesReordered.Inc() }
func RecordXPUnderflow()         { globalManager.xpUnderflows.Inc() }

// RecordSaleDuplicate counts a message dropped by the ingress dedupe.
func RecordSaleDuplicate() {
	globalManager.salesDuplicate.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

func RecordQueueEnqueue()      { globalManager.queueEnqueued.Inc() }
func RecordQueueDequeue()      { globalManager.queueDequeued.Inc() }
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }
func RecordRedelivery()        { globalManager.queueRedeliveries.Inc() }
func RecordDeadLetter()        { globalManager.queueDeadLetters.Inc() }

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a message that failed processing.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordCatalogRefresh counts a catalog resync by result
// (updated, unchanged, error).
func RecordCatalogRefresh(result string) {
	globalManager.catalogRefreshes.WithLabelValues(result).Inc()
}

// UpdateCatalogParts sets the number of parts in the catalog.
func UpdateCatalogParts(count int) {
	globalManager.catalogParts.Set(float64(count))
}

// RecordCatalogMiss counts a part lookup miss.
func RecordCatalogMiss() {
	globalManager.catalogMisses.Inc()
}

// RecordProviderRequest counts a provider call by operation and result.
func RecordProviderRequest(operation, result string) {
	globalManager.providerRequests.WithLabelValues(operation, result).Inc()
}

// RecordProviderLatency records provider latency in milliseconds.
func RecordProviderLatency(operation string, latencyMs float64) {
	globalManager.providerLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordProviderRetry counts a retried provider call.
func RecordProviderRetry(operation string) {
	globalManager.providerRetries.WithLabelValues(operation).Inc()
}

// UpdateCircuitBreakerState sets the state gauge of a named breaker.
func UpdateCircuitBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordStoreLatency records sale store latency in milliseconds.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordStoreDuplicate counts an insert that hit an existing sale.
func RecordStoreDuplicate() {
	globalManager.storeDuplicates.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}
