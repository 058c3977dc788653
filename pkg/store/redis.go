package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/respcache/respcache/pkg/logging"
)

// keyPrefix namespaces all cache entries in Redis. It is stripped again by
// Keys so that pattern invalidation matches the composed cache key string.
const keyPrefix = "respcache:"

// Reconnect backoff: attempt*reconnectBackoffStep, capped at reconnectBackoffMax.
const (
	reconnectBackoffStep = 100 * time.Millisecond
	reconnectBackoffMax  = 3 * time.Second
)

// ConnState represents the networked store connection state.
type ConnState int32

const (
	// StateDisconnected means no usable connection exists.
	StateDisconnected ConnState = iota

	// StateConnecting means the reconnect loop is running.
	StateConnecting

	// StateConnected means the last ping succeeded.
	StateConnected
)

// String returns a human-readable state name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// RedisConfig holds the networked store configuration.
type RedisConfig struct {
	// URL is the Redis connection string (redis:// or rediss://).
	URL string

	// MaxReconnectAttempts bounds the reconnect loop (<= 0 uses the default).
	MaxReconnectAttempts int

	// PoolSize is the advisory connection pool size (<= 0 keeps the driver default).
	PoolSize int
}

// DefaultMaxReconnectAttempts is used when RedisConfig leaves the ceiling unset.
const DefaultMaxReconnectAttempts = 10

// redisEntry is the JSON envelope stored per key.
type redisEntry struct {
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
}

// Redis is the networked store backed by a Redis server.
//
// Every operation is attempted regardless of connectivity state and its
// error is downgraded to a safe default: Get reports ErrCacheMiss, writes
// become logged no-ops, Keys returns an empty list. Connection loss marks
// the store disconnected and starts a bounded linear-backoff reconnect
// loop; once the attempt ceiling is reached the store stays degraded until
// a later operation error triggers a fresh loop.
type Redis struct {
	client      *redis.Client
	maxAttempts int

	state        atomic.Int32
	reconnecting atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewRedis creates the networked store and starts a lazy connect in the
// background. An unparseable connection string is the one loud error.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	// Per-call retries are disabled: retry policy lives in the reconnect
	// loop, not inline in the serving path.
	opt.MaxRetries = -1

	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReconnectAttempts
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Redis{
		client:      redis.NewClient(opt),
		maxAttempts: maxAttempts,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logging.NewLogger("redis-store"),
	}
	r.setState(StateDisconnected)
	r.startReconnect()

	return r, nil
}

// Get retrieves and decodes a value. Transport and decode failures are
// treated as a cache miss, never propagated.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		r.operationFailed("get", key, err)
		return nil, ErrCacheMiss
	}

	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		r.logger.Warn().
			Str("key", key).
			Err(fmt.Errorf("%w: %v", ErrInvalidEntry, err)).
			Msg("Discarding undecodable cache entry")
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return entry.Value, nil
}

// Set stores a JSON-encoded value. Value and TTL are applied atomically
// via SET with expiry. Failures are logged no-ops.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := json.Marshal(redisEntry{
		Value:    value,
		StoredAt: time.Now(),
	})
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		r.logger.Warn().Str("key", key).Err(err).Msg("Failed to encode cache entry")
		return nil
	}

	if err := r.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		r.operationFailed("set", key, err)
	}
	return nil
}

// Delete removes a key. Failures are logged no-ops.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		r.operationFailed("delete", key, err)
	}
	return nil
}

// Keys lists all cache keys with the store prefix stripped.
// Failures yield an empty list.
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	raw, err := r.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		r.operationFailed("keys", "", err)
		return nil, nil
	}

	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, keyPrefix))
	}
	return keys, nil
}

// Clear removes all entries under the store prefix.
func (r *Redis) Clear(ctx context.Context) error {
	raw, err := r.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		r.operationFailed("clear", "", err)
		return nil
	}
	if len(raw) == 0 {
		return nil
	}

	if err := r.client.Del(ctx, raw...).Err(); err != nil {
		r.operationFailed("clear", "", err)
	}
	return nil
}

// Close stops the reconnect loop and closes the client.
func (r *Redis) Close() error {
	r.cancel()
	r.wg.Wait()
	r.setState(StateDisconnected)
	return r.client.Close()
}

// State returns the current connection state.
func (r *Redis) State() ConnState {
	return ConnState(r.state.Load())
}

// Connected reports whether the last connectivity check succeeded.
func (r *Redis) Connected() bool {
	return r.State() == StateConnected
}

func (r *Redis) setState(s ConnState) {
	r.state.Store(int32(s))
	if s == StateConnected {
		RedisConnected.Set(1)
	} else {
		RedisConnected.Set(0)
	}
}

// operationFailed downgrades a transport error: count it, log it, mark the
// store disconnected and kick off the reconnect loop.
func (r *Redis) operationFailed(operation, key string, err error) {
	CacheErrors.WithLabelValues(operation).Inc()

	event := r.logger.Warn().Str("operation", operation).Err(err)
	if key != "" {
		event = event.Str("key", key)
	}
	event.Msg("Redis operation failed, continuing without cache")

	if r.State() == StateConnected {
		r.setState(StateDisconnected)
	}
	r.startReconnect()
}

// startReconnect launches the reconnect loop unless one is already running.
func (r *Redis) startReconnect() {
	if !r.reconnecting.CompareAndSwap(false, true) {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.reconnecting.Store(false)
		r.reconnectLoop()
	}()
}

// reconnectLoop drives disconnected -> connecting -> connected with linear
// backoff, bounded by maxAttempts. Exhaustion leaves the store degraded.
func (r *Redis) reconnectLoop() {
	r.setState(StateConnecting)

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
		err := r.client.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			r.setState(StateConnected)
			r.logger.Info().Int("attempt", attempt).Msg("Redis connected")
			return
		}

		backoff := time.Duration(attempt) * reconnectBackoffStep
		if backoff > reconnectBackoffMax {
			backoff = reconnectBackoffMax
		}

		r.logger.Debug().
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Err(err).
			Msg("Redis connect failed, retrying")

		select {
		case <-r.ctx.Done():
			r.setState(StateDisconnected)
			return
		case <-time.After(backoff):
		}
	}

	r.setState(StateDisconnected)
	r.logger.Warn().
		Int("max_attempts", r.maxAttempts).
		Msg("Redis reconnect attempts exhausted, store degraded")
}
