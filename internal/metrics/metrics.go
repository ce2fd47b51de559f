// Package metrics exposes Prometheus collectors for the encoder, the
// indexing pipeline and the HTTP API.
//
// All recording methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	forwardDuration    *prometheus.HistogramVec
	forwardDocuments   *prometheus.CounterVec
	forwardErrors      *prometheus.CounterVec
	documentsIndexed   *prometheus.CounterVec
	documentsSkipped   *prometheus.CounterVec
	documentsTruncated *prometheus.CounterVec
	documentsDeleted   *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		forwardDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forward_duration_seconds",
			Help:      "Duration of hierarchical forward passes.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"segment_encoder"}),
		forwardDocuments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_documents_total",
			Help:      "Documents encoded by forward passes.",
		}, []string{"segment_encoder"}),
		forwardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_errors_total",
			Help:      "Failed forward passes.",
		}, []string{"segment_encoder"}),
		documentsIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_indexed_total",
			Help:      "Documents encoded and stored.",
		}, []string{"corpus"}),
		documentsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_skipped_total",
			Help:      "Documents skipped because they were unchanged.",
		}, []string{"corpus"}),
		documentsTruncated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_truncated_total",
			Help:      "Documents longer than max_segments segments.",
		}, []string{"corpus"}),
		documentsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_deleted_total",
			Help:      "Vectors removed for documents no longer in the corpus.",
		}, []string{"corpus"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by path and status.",
		}, []string{"path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.forwardDuration,
		m.forwardDocuments,
		m.forwardErrors,
		m.documentsIndexed,
		m.documentsSkipped,
		m.documentsTruncated,
		m.documentsDeleted,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveForward records one forward pass over docs documents.
func (m *Metrics) ObserveForward(kind string, docs int, d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.forwardErrors.WithLabelValues(kind).Inc()
		return
	}
	m.forwardDuration.WithLabelValues(kind).Observe(d.Seconds())
	m.forwardDocuments.WithLabelValues(kind).Add(float64(docs))
}

// AddIndexed counts stored documents.
func (m *Metrics) AddIndexed(corpus string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.documentsIndexed.WithLabelValues(corpus).Add(float64(n))
}

// AddSkipped counts unchanged documents.
func (m *Metrics) AddSkipped(corpus string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.documentsSkipped.WithLabelValues(corpus).Add(float64(n))
}

// AddTruncated counts truncated documents.
func (m *Metrics) AddTruncated(corpus string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.documentsTruncated.WithLabelValues(corpus).Add(float64(n))
}

// AddDeleted counts removed documents.
func (m *Metrics) AddDeleted(corpus string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.documentsDeleted.WithLabelValues(corpus).Add(float64(n))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(path).Observe(d.Seconds())
}
