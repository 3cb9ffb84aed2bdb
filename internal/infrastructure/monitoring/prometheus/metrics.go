package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/moldesc/internal/domain/descriptor"
)

// AppMetrics holds the application metrics.
type AppMetrics struct {
	// Engine
	MoleculesTotal     CounterVec
	MoleculeDuration   HistogramVec
	DescriptorFailures CounterVec
	WorkersInFlight    GaugeVec

	// Service
	RunsTotal        CounterVec
	RunDuration      HistogramVec
	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec

	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// gRPC
	GRPCRequestsTotal   CounterVec
	GRPCRequestDuration HistogramVec

	// Messaging
	MessagesTotal   CounterVec
	MessageDuration HistogramVec
}

// Default buckets
var (
	DefaultHTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultMoleculeDurationBuckets = []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .5, 1}
	DefaultRunDurationBuckets      = []float64{.01, .1, .5, 1, 5, 10, 30, 60, 300, 900}
)

// NewAppMetrics registers every metric on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.MoleculesTotal = collector.RegisterCounter("molecules_evaluated_total", "Molecules evaluated", "outcome")
	m.MoleculeDuration = collector.RegisterHistogram("molecule_duration_seconds", "Per-molecule evaluation time", DefaultMoleculeDurationBuckets)
	m.DescriptorFailures = collector.RegisterCounter("descriptor_failures_total", "Descriptor slots holding a sentinel", "descriptor", "kind")
	m.WorkersInFlight = collector.RegisterGauge("map_workers_in_flight", "Map workers currently running")

	m.RunsTotal = collector.RegisterCounter("runs_total", "Calculation runs", "status")
	m.RunDuration = collector.RegisterHistogram("run_duration_seconds", "Calculation run duration", DefaultRunDurationBuckets)
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Result cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Result cache misses", "cache")

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")

	m.GRPCRequestsTotal = collector.RegisterCounter("grpc_requests_total", "Total gRPC requests", "service", "method", "code")
	m.GRPCRequestDuration = collector.RegisterHistogram("grpc_request_duration_seconds", "gRPC request duration", DefaultHTTPDurationBuckets, "service", "method")

	m.MessagesTotal = collector.RegisterCounter("messages_total", "Stream messages handled", "topic", "result")
	m.MessageDuration = collector.RegisterHistogram("message_duration_seconds", "Stream message handling time", DefaultRunDurationBuckets, "topic")

	return m
}

// EngineMetrics adapts AppMetrics to the Calculator's observer hook.
type EngineMetrics struct {
	m *AppMetrics
}

var _ descriptor.Observer = (*EngineMetrics)(nil)

// NewEngineMetrics returns the observer to install with descriptor.WithObserver.
func NewEngineMetrics(m *AppMetrics) *EngineMetrics {
	return &EngineMetrics{m: m}
}

func (e *EngineMetrics) MoleculeEvaluated(elapsed time.Duration, failures int) {
	outcome := "ok"
	if failures > 0 {
		outcome = "partial"
	}
	e.m.MoleculesTotal.WithLabelValues(outcome).Inc()
	e.m.MoleculeDuration.WithLabelValues().Observe(elapsed.Seconds())
}

func (e *EngineMetrics) DescriptorFailed(name string, kind descriptor.Kind) {
	e.m.DescriptorFailures.WithLabelValues(name, kind.String()).Inc()
}

func (e *EngineMetrics) WorkersInFlight(delta int) {
	e.m.WorkersInFlight.WithLabelValues().Add(float64(delta))
}

// Helpers

func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordGRPCRequest(m *AppMetrics, service, method, code string, duration time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(service, method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

func RecordCacheAccess(m *AppMetrics, cache string, hits, misses int) {
	if hits > 0 {
		m.CacheHitsTotal.WithLabelValues(cache).Add(float64(hits))
	}
	if misses > 0 {
		m.CacheMissesTotal.WithLabelValues(cache).Add(float64(misses))
	}
}

func RecordRun(m *AppMetrics, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues().Observe(duration.Seconds())
}

func RecordMessage(m *AppMetrics, topic string, err error) {
	result := "processed"
	if err != nil {
		result = "failed"
	}
	m.MessagesTotal.WithLabelValues(topic, result).Inc()
}
