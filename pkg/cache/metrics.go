package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptgate_cache_hits_total",
			Help: "Total number of completion cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptgate_cache_misses_total",
			Help: "Total number of completion cache misses",
		},
		[]string{"backend"},
	)

	// CacheEntries tracks the number of live entries in the memory backend
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "promptgate_cache_entries",
			Help: "Current number of entries in the in-memory cache",
		},
	)

	// CachePurgedEntries tracks entries removed by expiry purges
	CachePurgedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptgate_cache_purged_entries_total",
			Help: "Total number of expired cache entries purged",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptgate_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
