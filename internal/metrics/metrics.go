package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tracking service.
type Metrics struct {
	// Ingestion metrics
	EventsIngested   *prometheus.CounterVec
	IngestRejections *prometheus.CounterVec

	// Store metrics
	StoreLatency *prometheus.HistogramVec
	StoreErrors  *prometheus.CounterVec

	// Analytics metrics
	AggregatedEvents prometheus.Histogram

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// means a fresh private registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Tracking events accepted and stored",
			},
			[]string{"event_type"},
		),
		IngestRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_rejections_total",
				Help:      "Tracking events rejected, by reason",
			},
			[]string{"reason"},
		),

		StoreLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Event store operation latency",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"backend", "operation"},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Event store operation failures",
			},
			[]string{"backend", "operation"},
		),

		AggregatedEvents: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analytics_events_aggregated",
				Help:      "Number of events reduced per analytics request",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		gatherer: reg,
	}
}

// Handler returns the Prometheus HTTP handler for this metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordIngested records a stored event.
func (m *Metrics) RecordIngested(eventType string) {
	if m == nil {
		return
	}
	m.EventsIngested.WithLabelValues(eventType).Inc()
}

// RecordRejection records a rejected ingestion.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.IngestRejections.WithLabelValues(reason).Inc()
}

// RecordStoreOp records one event store call.
func (m *Metrics) RecordStoreOp(backend, operation string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	m.StoreLatency.WithLabelValues(backend, operation).Observe(latency.Seconds())
	if err != nil {
		m.StoreErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordAggregation records the size of an aggregated event set.
func (m *Metrics) RecordAggregation(events int) {
	if m == nil {
		return
	}
	m.AggregatedEvents.Observe(float64(events))
}

// RecordHTTPRequest records a served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(latency.Seconds())
}
