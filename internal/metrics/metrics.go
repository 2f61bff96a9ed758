// Package metrics holds the Prometheus collectors for the session store.
// All helpers are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finsession"

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheStale   = "stale"
	CacheCorrupt = "corrupt"
)

// Refresh outcomes.
const (
	RefreshSuccess    = "success"
	RefreshError      = "error"
	RefreshSuperseded = "superseded"
	RefreshEmpty      = "empty"
	RefreshFallback   = "fallback"
)

type Metrics struct {
	registry *prometheus.Registry

	cacheLookups *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	apiRequests  *prometheus.HistogramVec
	toasts       *prometheus.CounterVec
}

// New builds the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache store lookups by key and result.",
		}, []string{"key", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Snapshot refresh cycles by kind and outcome.",
		}, []string{"kind", "outcome"}),
		apiRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Latency of calls to the remote finance API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "resource", "status"}),
		toasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toasts_total",
			Help:      "User-facing notifications by level.",
		}, []string{"level"}),
	}
	reg.MustRegister(
		m.cacheLookups,
		m.refreshes,
		m.apiRequests,
		m.toasts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheLookup(key, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(key, result).Inc()
}

func (m *Metrics) Refresh(kind, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) APIRequest(method, resource string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, resource, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) Toast(level string) {
	if m == nil {
		return
	}
	m.toasts.WithLabelValues(level).Inc()
}
