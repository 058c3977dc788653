package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/respcache/respcache/pkg/logging"
	"github.com/respcache/respcache/pkg/store"
)

// ErrCacheMiss is re-exported for callers that only import this package.
var ErrCacheMiss = store.ErrCacheMiss

// Manager owns exactly one store backend and exposes the caching
// middleware plus programmatic invalidation. The backend is selected once
// at construction and never changes for the process lifetime.
type Manager struct {
	store  store.Store
	opts   Options
	async  bool
	logger zerolog.Logger
}

// cachedResponse is the payload envelope persisted per cache key.
type cachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	CachedAt   time.Time       `json:"cached_at"`
}

// New creates a Manager with the backend chosen from opts.
//
// When the networked backend is enabled but its connection string is
// missing or unparseable, the manager logs the configuration error and
// falls back to the in-process store: passthrough behavior continues, the
// serving path is never crashed over cache configuration.
func New(opts Options) *Manager {
	opts = opts.normalized()
	logger := logging.NewLogger("cache-manager")

	var backend store.Store
	async := false

	if opts.RedisEnabled {
		switch {
		case opts.RedisURL == "":
			logger.Error().Msg("Redis backend enabled but no connection string configured, falling back to in-process store")
		default:
			rs, err := store.NewRedis(store.RedisConfig{
				URL:                  opts.RedisURL,
				MaxReconnectAttempts: opts.MaxReconnectAttempts,
				PoolSize:             opts.RedisPoolSize,
			})
			if err != nil {
				logger.Error().Err(err).Msg("Redis backend unusable, falling back to in-process store")
			} else {
				backend = rs
				async = true
				logger.Info().Str("backend", "redis").Msg("Cache backend selected")
			}
		}
	}

	if backend == nil {
		backend = store.NewMemory(store.MemoryConfig{
			MaxKeys:     opts.MaxKeys,
			CheckPeriod: opts.CheckPeriod,
		})
		logger.Info().
			Str("backend", "memory").
			Int("max_keys", opts.MaxKeys).
			Dur("check_period", opts.CheckPeriod).
			Msg("Cache backend selected")
	}

	return &Manager{
		store:  backend,
		opts:   opts,
		async:  async,
		logger: logger,
	}
}

// NewWithStore creates a Manager around an externally constructed backend.
// Intended for tests and custom store implementations; write-backs run
// synchronously.
func NewWithStore(backend store.Store, opts Options) *Manager {
	return &Manager{
		store:  backend,
		opts:   opts.normalized(),
		logger: logging.NewLogger("cache-manager"),
	}
}

// Store returns the active backend.
func (m *Manager) Store() store.Store {
	return m.store
}

// ClearCache invalidates cached entries. An empty pattern flushes the
// entire store; otherwise pattern is compiled as a regular expression and
// every matching key is deleted.
func (m *Manager) ClearCache(ctx context.Context, pattern string) error {
	if pattern == "" {
		m.logger.Info().Msg("Flushing entire cache")
		return m.store.Clear(ctx)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile invalidation pattern: %w", err)
	}

	keys, err := m.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list cache keys: %w", err)
	}

	removed := 0
	for _, key := range keys {
		if re.MatchString(key) {
			if err := m.store.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete key %q: %w", key, err)
			}
			removed++
		}
	}

	m.logger.Info().
		Str("pattern", pattern).
		Int("removed", removed).
		Msg("Invalidated cache entries")
	return nil
}

// Close releases the backend's resources.
func (m *Manager) Close() error {
	return m.store.Close()
}
