package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "respcache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "respcache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheErrors tracks degraded store operations by operation name
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "respcache_errors_total",
			Help: "Total number of store operation errors (degraded, not propagated)",
		},
		[]string{"operation"}, // "get", "set", "delete", "keys", "clear"
	)

	// CacheEvictions tracks entries removed under capacity pressure
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "respcache_evictions_total",
			Help: "Total number of entries evicted before TTL expiry",
		},
	)

	// CacheEntries tracks the number of live entries by backend
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "respcache_entries",
			Help: "Current number of live cache entries",
		},
		[]string{"backend"},
	)

	// RedisConnected reports networked store connectivity (1 connected, 0 not)
	RedisConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "respcache_redis_connected",
			Help: "Whether the Redis backend is currently connected",
		},
	)
)
