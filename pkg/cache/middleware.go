package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// writebackTimeout bounds the detached cache write after the response has
// already been sent; the request context is gone by then.
const writebackTimeout = 5 * time.Second

// Middleware returns the caching middleware bound to the merged
// process-default and per-route config.
//
// Request lifecycle: non-GET methods bypass the cache entirely unless a
// custom key generator is configured. Eligible requests derive a key and
// query the store; lookup failure is treated as a miss (fail-open). On a
// hit the stored payload is replayed and the downstream handler never
// runs. On a miss the response writer is wrapped so the outgoing JSON
// payload is captured and persisted; the write-back is fire-and-forget
// for the networked backend and never delays or fails the response.
func (m *Manager) Middleware(cfg Config) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults(m.opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && cfg.KeyGenerator == nil {
				RequestsTotal.WithLabelValues("bypass").Inc()
				next.ServeHTTP(w, r)
				return
			}

			key := DeriveKey(r, cfg)

			if m.respondFromCache(w, r, key) {
				return
			}

			interceptor := newResponseInterceptor(w)
			next.ServeHTTP(interceptor, r)

			payload, ok := interceptor.capturedPayload()
			if !ok {
				return
			}
			m.persist(key, interceptor.statusCode(), payload, cfg.Duration)
		})
	}
}

// respondFromCache replays a stored payload if one exists. Any lookup or
// decode problem reports false so the request falls through to the
// downstream handler.
func (m *Manager) respondFromCache(w http.ResponseWriter, r *http.Request, key string) bool {
	data, err := m.store.Get(r.Context(), key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			m.logger.Warn().Str("key", key).Err(err).Msg("Cache lookup failed, serving fresh")
		}
		RequestsTotal.WithLabelValues("miss").Inc()
		return false
	}

	var cached cachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		m.logger.Warn().Str("key", key).Err(err).Msg("Malformed cache entry, serving fresh")
		RequestsTotal.WithLabelValues("miss").Inc()
		return false
	}

	RequestsTotal.WithLabelValues("hit").Inc()
	m.logger.Debug().Str("key", key).Msg("Cache hit")

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "HIT")
	w.WriteHeader(cached.StatusCode)
	if _, err := w.Write(cached.Body); err != nil {
		m.logger.Warn().Str("key", key).Err(err).Msg("Failed to write cached response")
	}
	return true
}

// persist stores a captured response. For the networked backend the write
// is detached from the request path; failures are logged, never surfaced.
func (m *Manager) persist(key string, status int, body []byte, ttl time.Duration) {
	data, err := json.Marshal(cachedResponse{
		StatusCode: status,
		Body:       body,
		CachedAt:   time.Now(),
	})
	if err != nil {
		WritebackErrors.Inc()
		m.logger.Warn().Str("key", key).Err(err).Msg("Failed to encode response for caching")
		return
	}

	write := func() {
		ctx, cancel := context.WithTimeout(context.Background(), writebackTimeout)
		defer cancel()

		if err := m.store.Set(ctx, key, data, ttl); err != nil {
			WritebackErrors.Inc()
			m.logger.Warn().Str("key", key).Err(err).Msg("Failed to cache response")
			return
		}
		m.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cached response")
	}

	if m.async {
		go write()
	} else {
		write()
	}
}

// responseInterceptor decorates the real response sink: it forwards
// everything unchanged and tees the body when the downstream handler emits
// a JSON response.
type responseInterceptor struct {
	http.ResponseWriter

	status      int
	wroteHeader bool
	decided     bool
	capture     bool
	body        []byte
}

func newResponseInterceptor(w http.ResponseWriter) *responseInterceptor {
	return &responseInterceptor{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader records the first status code and forwards it.
func (ri *responseInterceptor) WriteHeader(code int) {
	if !ri.wroteHeader {
		ri.status = code
		ri.wroteHeader = true
	}
	ri.ResponseWriter.WriteHeader(code)
}

// Write tees the payload when the response is JSON-style. The capture
// decision is made once, at the first write, from the Content-Type the
// handler set.
func (ri *responseInterceptor) Write(p []byte) (int, error) {
	if !ri.wroteHeader {
		ri.wroteHeader = true
	}
	if !ri.decided {
		ri.decided = true
		ct := ri.Header().Get("Content-Type")
		ri.capture = strings.Contains(ct, "application/json")
	}
	if ri.capture {
		ri.body = append(ri.body, p...)
	}
	return ri.ResponseWriter.Write(p)
}

// Flush forwards to the underlying writer so streaming handlers keep
// working on the miss path.
func (ri *responseInterceptor) Flush() {
	if f, ok := ri.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// statusCode returns the status sent downstream.
func (ri *responseInterceptor) statusCode() int {
	return ri.status
}

// capturedPayload returns the captured body when the response is cacheable:
// a successful status and a valid JSON payload.
func (ri *responseInterceptor) capturedPayload() ([]byte, bool) {
	if !ri.capture || len(ri.body) == 0 {
		return nil, false
	}
	if ri.status < 200 || ri.status >= 300 {
		return nil, false
	}
	if !json.Valid(ri.body) {
		return nil, false
	}
	return ri.body, true
}
