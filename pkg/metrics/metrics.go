// Package metrics provides the centralized Prometheus registry reference
// for the response cache. All metrics are defined in their respective
// packages (cache, store) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the cache.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Store Metrics (pkg/store):
//   - respcache_hits_total{backend} (Counter): Cache hits by backend (memory, redis)
//   - respcache_misses_total (Counter): Cache misses
//   - respcache_errors_total{operation} (Counter): Degraded store operations
//   - respcache_evictions_total (Counter): Entries evicted under capacity pressure
//   - respcache_entries{backend} (Gauge): Live entries per backend
//   - respcache_redis_connected (Gauge): Networked store connectivity (0/1)
//
// Middleware Metrics (pkg/cache):
//   - respcache_requests_total{outcome} (Counter): Middleware outcomes (hit, miss, bypass)
//   - respcache_writeback_errors_total (Counter): Failed cache write-backs
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(respcache_hits_total[5m])) /
//   (sum(rate(respcache_hits_total[5m])) + sum(rate(respcache_misses_total[5m])))
//
//   # Degraded Operation Rate
//   rate(respcache_errors_total[5m])
//
//   # Backend Connectivity
//   respcache_redis_connected == 0
