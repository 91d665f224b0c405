// Package metrics exposes the relay's Prometheus instruments: inbound HTTP
// traffic, webhook deliveries and the offline queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Config selects the namespace, optional Go collectors and histogram buckets.
type Config struct {
	Namespace            string
	EnableProcessMetrics bool
	EnableRuntimeMetrics bool
	HistogramBuckets     HistogramBucketsConfig
}

// HistogramBucketsConfig holds bucket boundaries. Durations are in seconds,
// sizes in bytes.
type HistogramBucketsConfig struct {
	HTTPDuration     []float64
	HTTPSize         []float64
	DeliveryDuration []float64
	DrainDuration    []float64
}

// DefaultConfig returns the "leadrelay" namespace with both Go collectors on.
func DefaultConfig() Config {
	return Config{
		Namespace:            "leadrelay",
		EnableProcessMetrics: true,
		EnableRuntimeMetrics: true,
		HistogramBuckets:     DefaultHistogramBuckets(),
	}
}

// DefaultHistogramBuckets sizes delivery buckets around the 10 second attempt
// timeout and drain buckets around a full queue of retried deliveries.
func DefaultHistogramBuckets() HistogramBucketsConfig {
	return HistogramBucketsConfig{
		HTTPDuration:     prometheus.DefBuckets,
		HTTPSize:         prometheus.ExponentialBuckets(128, 4, 7),
		DeliveryDuration: []float64{.05, .1, .25, .5, 1, 2, 4, 8, 10},
		DrainDuration:    []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
	}
}

// Registry owns a private prometheus.Registry and every relay instrument.
type Registry struct {
	config   Config
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec
	httpActiveRequests  *prometheus.GaugeVec

	webhookDeliveriesTotal *prometheus.CounterVec
	webhookAttemptsTotal   *prometheus.CounterVec
	webhookAttemptDuration *prometheus.HistogramVec
	webhookErrors          *prometheus.CounterVec

	queueDepth         prometheus.Gauge
	queueEnqueuedTotal *prometheus.CounterVec
	queueDroppedTotal  *prometheus.CounterVec
	queueDrainPasses   *prometheus.CounterVec
	queueDrainDuration prometheus.Histogram
}

// NewRegistry builds and registers all instruments. Zero fields in cfg fall
// back to DefaultConfig values; the Go collectors stay opt-in.
func NewRegistry(cfg Config) *Registry {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultConfig().Namespace
	}
	def := DefaultHistogramBuckets()
	b := &cfg.HistogramBuckets
	orDefault(&b.HTTPDuration, def.HTTPDuration)
	orDefault(&b.HTTPSize, def.HTTPSize)
	orDefault(&b.DeliveryDuration, def.DeliveryDuration)
	orDefault(&b.DrainDuration, def.DrainDuration)

	r := &Registry{config: cfg, registry: prometheus.NewRegistry()}
	f := instruments{ns: cfg.Namespace}

	r.httpRequestsTotal = f.counter("http", "requests_total", "HTTP requests served.", "method", "path", "status_code")
	r.httpRequestDuration = f.histogram("http", "request_duration_seconds", "HTTP request latency.", b.HTTPDuration, "method", "path")
	r.httpRequestSize = f.histogram("http", "request_size_bytes", "HTTP request body size.", b.HTTPSize, "method", "path")
	r.httpResponseSize = f.histogram("http", "response_size_bytes", "HTTP response body size.", b.HTTPSize, "method", "path")
	r.httpActiveRequests = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: f.ns, Subsystem: "http", Name: "active_requests",
		Help: "HTTP requests currently in flight.",
	}, []string{"method", "path"})

	r.webhookDeliveriesTotal = f.counter("webhook", "deliveries_total", "Webhook deliveries by final outcome.", "endpoint", "outcome")
	r.webhookAttemptsTotal = f.counter("webhook", "attempts_total", "HTTP attempts made to webhook endpoints.", "endpoint", "status_code")
	r.webhookAttemptDuration = f.histogram("webhook", "delivery_duration_seconds", "Latency of one webhook attempt.", b.DeliveryDuration, "endpoint")
	r.webhookErrors = f.counter("webhook", "errors_total", "Failed webhook attempts by error type.", "endpoint", "error_type")

	r.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: f.ns, Subsystem: "queue", Name: "depth",
		Help: "Deliveries waiting in the offline queue.",
	})
	r.queueEnqueuedTotal = f.counter("queue", "enqueued_total", "Critical deliveries moved to the offline queue.", "endpoint")
	r.queueDroppedTotal = f.counter("queue", "dropped_total", "Queued deliveries dropped after their last attempt.", "endpoint")
	r.queueDrainPasses = f.counter("queue", "drain_passes_total", "Drain passes by result.", "result")
	r.queueDrainDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: f.ns, Subsystem: "queue", Name: "drain_duration_seconds",
		Help: "Duration of completed drain passes.", Buckets: b.DrainDuration,
	})

	r.registry.MustRegister(
		r.httpRequestsTotal, r.httpRequestDuration, r.httpRequestSize, r.httpResponseSize, r.httpActiveRequests,
		r.webhookDeliveriesTotal, r.webhookAttemptsTotal, r.webhookAttemptDuration, r.webhookErrors,
		r.queueDepth, r.queueEnqueuedTotal, r.queueDroppedTotal, r.queueDrainPasses, r.queueDrainDuration,
	)
	if cfg.EnableProcessMetrics {
		r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if cfg.EnableRuntimeMetrics {
		r.registry.MustRegister(collectors.NewGoCollector())
	}
	return r
}

// PrometheusRegistry returns the underlying registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Config returns the effective configuration.
func (r *Registry) Config() Config {
	return r.config
}

type instruments struct {
	ns string
}

func (f instruments) counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: f.ns, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (f instruments) histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: f.ns, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

func orDefault(dst *[]float64, def []float64) {
	if len(*dst) == 0 {
		*dst = def
	}
}
