package edgecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the worker's Prometheus collectors, registered on a
// dedicated registry so multiple workers can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	Hits            *prometheus.CounterVec
	Misses          *prometheus.CounterVec
	SelfHeals       prometheus.Counter
	PrewarmFailures prometheus.Counter
	SyncFlushes     prometheus.Counter
}

func newMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edgecache_requests_total",
			Help: "Requests handled, by lane.",
		}, []string{"lane"}),
		Hits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edgecache_hits_total",
			Help: "Requests served from cache, by lane.",
		}, []string{"lane"}),
		Misses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edgecache_misses_total",
			Help: "Requests that went to the origin, by lane.",
		}, []string{"lane"}),
		SelfHeals: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgecache_selfheal_evictions_total",
			Help: "Poisoned 404 entries evicted on access.",
		}),
		PrewarmFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgecache_prewarm_failures_total",
			Help: "Shell assets that could not be pre-warmed at install.",
		}),
		SyncFlushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgecache_sync_flushes_total",
			Help: "Queued offline mutations flushed to the backend.",
		}),
	}
}
