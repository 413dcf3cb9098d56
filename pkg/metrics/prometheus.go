// Package metrics provides Prometheus metrics for the cross-camera tracking engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// matchScoreBuckets spans the [0,1] score range around the default threshold.
var matchScoreBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0} //nolint:gochecknoglobals // fixed bucket layout

// candidateBuckets counts candidates scored per observation.
var candidateBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000} //nolint:gochecknoglobals // fixed bucket layout

// Manager manages all Prometheus metrics for the tracking engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	scoreBuckets     []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Resolution Metrics
	observationsResolved prometheus.Counter
	identitiesCreated    prometheus.Counter
	matches              prometheus.Counter
	matchScore           prometheus.Histogram
	candidatesConsidered prometheus.Histogram
	topologyRejections   prometheus.Counter
	resolveLatency       prometheus.Histogram
	resolveErrors        prometheus.Counter
	extractionFailures   prometheus.Counter
	links                prometheus.Counter

	// State Metrics
	trackedRecords prometheus.Gauge
	topologyEdges  prometheus.Gauge

	// Store Metrics
	storeLatency      *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	retentionRemovals prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - Write-behind queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Writer Metrics
	writerBatches           prometheus.Counter
	writerErrors            prometheus.Counter
	writerProcessingLatency prometheus.Histogram

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "crosscam",
		subsystem:        "tracking",
		histogramBuckets: prometheus.DefBuckets,
		scoreBuckets:     matchScoreBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string { return m.metricPrefix + n }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
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

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.observationsResolved = m.counter("observations_resolved_total", "Total number of attribute observations resolved")
	m.identitiesCreated = m.counter("identities_created_total", "Total number of new tracking identities created")
	m.matches = m.counter("matches_total", "Total number of observations attached to an existing identity")
	m.matchScore = m.histogram("match_score", "Score of the winning candidate for matched observations", m.scoreBuckets)
	m.candidatesConsidered = m.histogram("candidates_considered", "Number of eligible candidates scored per observation", candidateBuckets)
	m.topologyRejections = m.counter("topology_rejections_total", "Candidates rejected as implausible camera transitions")
	m.resolveLatency = m.histogram("resolve_latency_milliseconds", "Latency of a resolve call in milliseconds", m.histogramBuckets)
	m.resolveErrors = m.counter("resolve_errors_total", "Resolve calls that failed and were rolled back")
	m.extractionFailures = m.counter("extraction_failures_total", "Frames whose attribute extraction failed")
	m.links = m.counter("links_total", "Successful links of a tracking record to an external worker")

	m.trackedRecords = m.gauge("live_candidates", "Records currently held in the live candidate index")
	m.topologyEdges = m.gauge("topology_edges", "Configured camera topology edges")

	m.storeLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("store_latency_milliseconds"),
			Help:        "Persistence operation latency in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"operation"},
	)

	m.storeErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("store_errors_total"),
			Help:        "Persistence operations that failed",
			ConstLabels: m.customLabels,
		},
		[]string{"operation"},
	)

	m.retentionRemovals = m.counter("retention_removed_total", "Records removed by retention cleanup")

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_requests_total"),
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Queue Metrics
	m.queueSize = m.gauge("queue_size", "Batches waiting in the write-behind queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum write-behind queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of batches enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of batches dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Batches rejected by a full or closed queue")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Time a batch waited in the queue in milliseconds", m.histogramBuckets)

	// Writer Metrics
	m.writerBatches = m.counter("writer_batches_total", "Batches persisted by the background writer")
	m.writerErrors = m.counter("writer_errors_total", "Batches the background writer failed to persist")
	m.writerProcessingLatency = m.histogram("writer_processing_latency_milliseconds", "Background writer persist latency in milliseconds", m.histogramBuckets)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_component_total"),
			Help:        "Total number of errors by component",
			ConstLabels: m.customLabels,
		},
		[]string{"component", "error_type"},
	)
}

// Enabled reports whether the manager records observations.
func (m *Manager) Enabled() bool { return m.enabled }

// Resolution Metrics Functions.

// RecordObservationResolved increments the resolved observations counter.
func RecordObservationResolved() {
	if !globalManager.enabled {
		return
	}
	globalManager.observationsResolved.Inc()
}

// RecordIdentityCreated increments the new identities counter.
func RecordIdentityCreated() {
	if !globalManager.enabled {
		return
	}
	globalManager.identitiesCreated.Inc()
}

// RecordMatch counts a matched observation and records its score.
func RecordMatch(score float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.matches.Inc()
	globalManager.matchScore.Observe(score)
}

// RecordCandidatesConsidered records how many candidates were scored.
func RecordCandidatesConsidered(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.candidatesConsidered.Observe(float64(n))
}

// RecordTopologyRejections adds n rejected candidates.
func RecordTopologyRejections(n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.topologyRejections.Add(float64(n))
}

// RecordResolveLatency records resolve latency in milliseconds.
func RecordResolveLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.resolveLatency.Observe(latencyMs)
}

// RecordResolveError increments the failed resolve counter.
func RecordResolveError() {
	if !globalManager.enabled {
		return
	}
	globalManager.resolveErrors.Inc()
}

// RecordExtractionFailure increments the extraction failure counter.
func RecordExtractionFailure() {
	if !globalManager.enabled {
		return
	}
	globalManager.extractionFailures.Inc()
}

// RecordLink increments the successful link counter.
func RecordLink() {
	if !globalManager.enabled {
		return
	}
	globalManager.links.Inc()
}

// UpdateLiveCandidates sets the live candidate index size.
func UpdateLiveCandidates(count int) {
	globalManager.trackedRecords.Set(float64(count))
}

// UpdateTopologyEdges sets the number of configured topology edges.
func UpdateTopologyEdges(count int) {
	globalManager.topologyEdges.Set(float64(count))
}

// Store Metrics Functions.

// RecordStoreLatency records the latency of a persistence operation.
func RecordStoreLatency(operation string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordStoreError increments the failed persistence operation counter.
func RecordStoreError(operation string) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeErrors.WithLabelValues(operation).Inc()
}

// RecordRetentionRemovals adds n records removed by cleanup.
func RecordRetentionRemovals(n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.retentionRemovals.Add(float64(n))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

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

// RecordQueueProcessingLatency records how long a batch waited in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Writer Metrics Functions.

// RecordWriterBatch increments the persisted batch counter.
func RecordWriterBatch() {
	globalManager.writerBatches.Inc()
}

// RecordWriterError increments the writer error counter.
func RecordWriterError() {
	globalManager.writerErrors.Inc()
}

// RecordWriterProcessingLatency records writer persist latency.
func RecordWriterProcessingLatency(latencyMs float64) {
	globalManager.writerProcessingLatency.Observe(latencyMs)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
