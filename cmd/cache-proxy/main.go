package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/respcache/respcache/pkg/cache"
	"github.com/respcache/respcache/pkg/logging"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnvBool("LOG_PRETTY", false),
		Output: os.Stderr,
	})

	port := getEnv("PORT", "8080")

	manager := cache.New(cache.Options{
		DefaultTTL:           getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
		CheckPeriod:          getEnvDuration("CACHE_CHECK_PERIOD", 60*time.Second),
		MaxKeys:              getEnvInt("CACHE_MAX_KEYS", 1000),
		RedisEnabled:         getEnvBool("CACHE_REDIS_ENABLED", false),
		RedisURL:             getEnv("CACHE_REDIS_URL", ""),
		MaxReconnectAttempts: getEnvInt("CACHE_REDIS_MAX_RECONNECTS", 10),
		RedisPoolSize:        getEnvInt("CACHE_REDIS_POOL_SIZE", 0),
	})
	defer manager.Close()

	cached := manager.Middleware(cache.Config{
		Duration:     getEnvDuration("CACHE_ROUTE_TTL", 30*time.Second),
		IgnoreParams: []string{"_"},
	})

	mux := http.NewServeMux()
	mux.Handle("GET /api/time", cached(http.HandlerFunc(timeHandler)))
	mux.Handle("GET /api/echo", cached(http.HandlerFunc(echoHandler)))
	mux.HandleFunc("DELETE /cache", clearCacheHandler(manager))
	mux.HandleFunc("DELETE /cache/{pattern}", clearCacheHandler(manager))
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := ":" + port
	logger.Info().Str("addr", addr).Msg("Starting cache proxy server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// timeHandler is a demo route: without the cache every request would see a
// fresh timestamp, so the cache TTL is directly observable.
func timeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"now": time.Now().Format(time.RFC3339Nano),
	})
}

// echoHandler is a demo route replaying its query parameters.
func echoHandler(w http.ResponseWriter, r *http.Request) {
	params := map[string]string{}
	for name := range r.URL.Query() {
		params[name] = r.URL.Query().Get(name)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"params": params})
}

// clearCacheHandler exposes the invalidation API: DELETE /cache flushes
// everything, DELETE /cache/{pattern} removes matching keys.
func clearCacheHandler(manager *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pattern := r.PathValue("pattern")

		if err := manager.ClearCache(r.Context(), pattern); err != nil {
			http.Error(w, fmt.Sprintf("invalidation failed: %v", err), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared", "pattern": pattern})
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
