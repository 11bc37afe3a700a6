// Package metrics provides Prometheus metrics for the pointbin device agent.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the agent.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Sensor link
	sensorRecords        *prometheus.CounterVec
	sensorLinkErrors     prometheus.Counter
	sensorLinkReconnects prometheus.Counter

	// Debounce + cooldown gate
	triggersEmitted *prometheus.CounterVec
	triggersDropped prometheus.Counter

	// Capture pipeline
	captureQueueSize prometheus.Gauge
	captures         *prometheus.CounterVec
	captureLatency   prometheus.Histogram

	// Classification
	classificationAttempts prometheus.Counter
	classificationFailures prometheus.Counter
	classificationLatency  prometheus.Histogram

	// Awards
	awards           *prometheus.CounterVec
	endpointDelivery *prometheus.CounterVec
	offlineQueueSize prometheus.Gauge
	offlineDrained   prometheus.Counter
	offlineMalformed prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// Status server
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var (
	globalManager  atomic.Pointer[Manager]             //nolint:gochecknoglobals // singleton metrics manager
	customRegistry atomic.Pointer[prometheus.Registry] //nolint:gochecknoglobals // registry backing globalManager
)

func init() { //nolint:gochecknoinits // metrics must be usable before main configures them
	Init()
}

// Init replaces the global manager with one registered on a fresh registry.
// Call it once at startup, before any component records metrics, to apply
// options such as WithConstLabels.
func Init(opts ...Option) {
	reg := prometheus.NewRegistry()
	opts = append(opts, WithPrometheusRegistry(reg))
	m := NewManager(opts...)
	customRegistry.Store(reg)
	globalManager.Store(m)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pointbin",
		subsystem:        "agent",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		})
	}
	histogram := func(name, help string) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
			Buckets: m.histogramBuckets,
		})
	}

	m.sensorRecords = counterVec("sensor_records_total", "Sensor-line records received by kind", "kind")
	m.sensorLinkErrors = counter("sensor_link_errors_total", "Sensor link open/read failures")
	m.sensorLinkReconnects = counter("sensor_link_reconnects_total", "Successful sensor link (re)opens")

	m.triggersEmitted = counterVec("triggers_emitted_total", "Capture triggers emitted by the debouncer", "rule")
	m.triggersDropped = counter("triggers_dropped_total", "Capture triggers dropped by the cooldown gate")

	m.captureQueueSize = gauge("capture_queue_size", "Capture triggers waiting for the capture worker")
	m.captures = counterVec("captures_total", "Processed capture triggers by outcome", "outcome")
	m.captureLatency = histogram("capture_latency_milliseconds", "End-to-end latency of one capture trigger")

	m.classificationAttempts = counter("classification_attempts_total", "Classification service attempts")
	m.classificationFailures = counter("classification_failures_total", "Classifications that exhausted all attempts")
	m.classificationLatency = histogram("classification_latency_milliseconds", "Latency of a successful classification including retries")

	m.awards = counterVec("awards_total", "Award calls by outcome", "outcome")
	m.endpointDelivery = counterVec("award_endpoint_deliveries_total", "Award RPC attempts by endpoint and result", "endpoint", "result")
	m.offlineQueueSize = gauge("offline_queue_size", "Award payloads pending in the offline queue")
	m.offlineDrained = counter("offline_queue_drained_total", "Offline award payloads delivered by a drain pass")
	m.offlineMalformed = counter("offline_queue_malformed_total", "Malformed offline queue lines discarded")

	m.errorRateByComponent = counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.httpRequests = counterVec("http_requests_total", "Status server requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_request_duration_milliseconds",
		Help: "Status server request duration", ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = gauge("system_goroutines", "Number of goroutines")
}

func current() *Manager { return globalManager.Load() }

// Sensor Metrics Functions.

// RecordSensorRecord counts one parsed sensor record.
func RecordSensorRecord(kind string) {
	current().sensorRecords.WithLabelValues(kind).Inc()
}

// RecordLinkError counts a sensor link failure.
func RecordLinkError() {
	current().sensorLinkErrors.Inc()
}

// RecordLinkReconnect counts a successful sensor link open.
func RecordLinkReconnect() {
	current().sensorLinkReconnects.Inc()
}

// Trigger Metrics Functions.

// RecordTriggerEmitted counts a trigger emitted by the given debounce rule.
func RecordTriggerEmitted(rule string) {
	current().triggersEmitted.WithLabelValues(rule).Inc()
}

// RecordTriggerDropped counts a trigger rejected by the cooldown gate.
func RecordTriggerDropped() {
	current().triggersDropped.Inc()
}

// Capture Metrics Functions.

// UpdateCaptureQueueSize sets the capture queue depth.
func UpdateCaptureQueueSize(size int) {
	current().captureQueueSize.Set(float64(size))
}

// RecordCapture counts one processed trigger by outcome.
func RecordCapture(outcome string) {
	current().captures.WithLabelValues(outcome).Inc()
}

// RecordCaptureLatency records the processing latency of one trigger.
func RecordCaptureLatency(latencyMs float64) {
	current().captureLatency.Observe(latencyMs)
}

// Classification Metrics Functions.

// RecordClassificationAttempt counts one attempt against the classifier.
func RecordClassificationAttempt() {
	current().classificationAttempts.Inc()
}

// RecordClassificationFailure counts a classification that gave up.
func RecordClassificationFailure() {
	current().classificationFailures.Inc()
}

// RecordClassificationLatency records the latency of a successful classification.
func RecordClassificationLatency(latencyMs float64) {
	current().classificationLatency.Observe(latencyMs)
}

// Award Metrics Functions.

// RecordAward counts an award call outcome.
func RecordAward(outcome string) {
	current().awards.WithLabelValues(outcome).Inc()
}

// RecordEndpointDelivery counts one RPC attempt against an award endpoint.
func RecordEndpointDelivery(endpoint, result string) {
	current().endpointDelivery.WithLabelValues(endpoint, result).Inc()
}

// UpdateOfflineQueueSize sets the number of pending offline awards.
func UpdateOfflineQueueSize(size int) {
	current().offlineQueueSize.Set(float64(size))
}

// RecordOfflineDrained adds n delivered offline awards.
func RecordOfflineDrained(n int) {
	current().offlineDrained.Add(float64(n))
}

// RecordOfflineMalformed adds n discarded malformed queue lines.
func RecordOfflineMalformed(n int) {
	current().offlineMalformed.Add(float64(n))
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	current().errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest increments the request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	current().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	current().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	current().systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	current().systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry.Load()
}
