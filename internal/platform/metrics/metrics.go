package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loinc"

// Pipelines and outcomes used as label values.
const (
	PipelineLaboratory = "laboratory"
	PipelineRadiology  = "radiology"

	OutcomeFound      = "found"
	OutcomeNotFound   = "not_found"
	OutcomeStoreError = "store_error"

	CacheHit       = "hit"
	CacheSharedHit = "shared_hit"
	CacheMiss      = "miss"
)

var documentDurationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	codesResolved    *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	storeErrors      *prometheus.CounterVec
	documentDuration prometheus.Histogram
	httpRequests     *prometheus.CounterVec
}

// New registers every collector, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)

	m := &Metrics{
		registry: reg,
		codesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_resolved_total",
			Help:      "Entities processed by a resolution pipeline, by outcome.",
		}, []string{"pipeline", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Laboratory result cache lookups, by result.",
		}, []string{"result"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed reference store queries, by operation.",
		}, []string{"operation"}),
		documentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_duration_seconds",
			Help:      "Time to resolve one document.",
			Buckets:   documentDurationBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status.",
		}, []string{"method", "path", "status"}),
	}
	reg.MustRegister(m.codesResolved, m.cacheLookups, m.storeErrors, m.documentDuration, m.httpRequests)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) CodeResolved(pipeline, outcome string) {
	if m == nil {
		return
	}
	m.codesResolved.WithLabelValues(pipeline, outcome).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) StoreError(operation string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveDocument(d time.Duration) {
	if m == nil {
		return
	}
	m.documentDuration.Observe(d.Seconds())
}

func (m *Metrics) HTTPRequest(method, path string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
