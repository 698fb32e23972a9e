package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh entries served from Redis
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	// CacheMisses tracks lookups that found nothing usable
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheStale tracks stale entries returned for revalidation
	CacheStale = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_cache_stale_total",
			Help: "Total number of stale entries returned for revalidation",
		},
	)

	// Revalidations tracks conditional requests by result
	Revalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_revalidations_total",
			Help: "Total number of conditional revalidation requests",
		},
		[]string{"result"}, // "not_modified", "modified"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "invalidate"
	)
)
