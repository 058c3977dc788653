// Package cache provides request-scoped response caching for HTTP handler
// chains, backed by a pluggable store.
//
// A Manager owns one store backend, chosen once at construction: the
// bounded in-process store (default and fallback) or the Redis-backed
// networked store. Per-route policy is expressed as a Config handed to
// Middleware, which returns a standard net/http middleware implementing
// the read-through/write-back flow:
//
//   - Deterministic cache keys from method, path and the selected
//     query/body/header fields
//   - Hits short-circuit the handler chain and replay the stored payload
//   - Misses run the downstream handler and capture its JSON response
//     for storage, without delaying the reply
//   - Every cache-layer failure is fail-open: the request proceeds as on
//     a genuine miss
//
// # Basic Usage
//
//	manager := cache.New(cache.Options{
//		DefaultTTL:  time.Minute,
//		CheckPeriod: 30 * time.Second,
//		MaxKeys:     1000,
//	})
//	defer manager.Close()
//
//	mux := http.NewServeMux()
//	cached := manager.Middleware(cache.Config{Duration: 10 * time.Second})
//	mux.Handle("/api/report", cached(reportHandler))
//
// # Invalidation
//
//	// Flush everything
//	manager.ClearCache(ctx, "")
//
//	// Remove all cached GET /api/report variants
//	manager.ClearCache(ctx, `^GET\|/api/report\|`)
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - respcache_requests_total{outcome} - middleware outcomes (hit, miss, bypass)
//   - respcache_writeback_errors_total - failed cache write-backs
//
// Store-level metrics (hits, misses, errors, evictions, connectivity) are
// exported by the store package.
package cache
