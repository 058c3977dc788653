package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/respcache/respcache/pkg/logging"
)

// MemoryConfig holds the in-process store configuration.
type MemoryConfig struct {
	// MaxKeys bounds the number of live entries (<= 0 means unbounded).
	MaxKeys int

	// CheckPeriod is the interval of the background expiry sweep.
	// <= 0 disables the sweep; lazy expiry on Get still applies.
	CheckPeriod time.Duration
}

// Memory is a bounded in-process key/value store with per-entry TTL.
//
// Expired entries are removed by a background sweep every CheckPeriod and,
// as a correctness backstop, lazily on Get. When the store is full a Set
// evicts roughly 10% of the oldest-stored entries and retries once; a
// second failure is logged and dropped, never returned to the caller.
//
// Memory owns its sweep goroutine. Call Close to stop it.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	maxKeys int
	seq     uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// memoryEntry keeps the stored-at sequence so eviction can pick the
// oldest-stored entries deterministically without LRU bookkeeping.
type memoryEntry struct {
	value     []byte
	seq       uint64
	expiresAt time.Time
}

// NewMemory creates the in-process store and starts the expiry sweep.
func NewMemory(cfg MemoryConfig) *Memory {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Memory{
		entries: make(map[string]*memoryEntry),
		maxKeys: cfg.MaxKeys,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logging.NewLogger("memory-store"),
	}
	CacheEntries.WithLabelValues("memory").Set(0)

	if cfg.CheckPeriod > 0 {
		m.wg.Add(1)
		go m.sweepLoop(cfg.CheckPeriod)
	}

	return m
}

// Get retrieves a value. Expired-but-not-yet-swept entries report absent.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if !e.expiresAt.After(time.Now()) {
		// Lazy expiry: the sweep has not run yet, treat as absent.
		delete(m.entries, key)
		CacheEntries.WithLabelValues("memory").Set(float64(len(m.entries)))
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	return cloneBytes(e.value), nil
}

// Set stores a value with the given TTL. A full store is handled locally
// via evict-and-retry; Set never returns an error.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	if !m.hasCapacityLocked(key) {
		m.evictLocked(now)

		// Retry exactly once after eviction. Eviction frees at least one
		// slot unless the store is configured to hold nothing at all.
		if !m.hasCapacityLocked(key) {
			CacheErrors.WithLabelValues("set").Inc()
			m.logger.Warn().
				Str("key", key).
				Int("max_keys", m.maxKeys).
				Msg("Write abandoned: store still full after eviction")
			return nil
		}
	}

	m.seq++
	m.entries[key] = &memoryEntry{
		value:     cloneBytes(value),
		seq:       m.seq,
		expiresAt: now.Add(ttl),
	}
	CacheEntries.WithLabelValues("memory").Set(float64(len(m.entries)))

	return nil
}

// Delete removes a key if present.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	CacheEntries.WithLabelValues("memory").Set(float64(len(m.entries)))
	return nil
}

// Keys lists all unexpired keys.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0, len(m.entries))
	for key, e := range m.entries {
		if e.expiresAt.After(now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Clear removes all entries.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*memoryEntry)
	CacheEntries.WithLabelValues("memory").Set(0)
	return nil
}

// Len returns the number of entries, including expired-but-not-yet-swept ones.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (m *Memory) Close() error {
	m.cancel()
	m.wg.Wait()
	return nil
}

// hasCapacityLocked reports whether key can be written without exceeding
// MaxKeys. Overwrites of existing keys never need capacity.
func (m *Memory) hasCapacityLocked(key string) bool {
	if m.maxKeys <= 0 {
		return true
	}
	if _, exists := m.entries[key]; exists {
		return true
	}
	return len(m.entries) < m.maxKeys
}

// evictLocked frees capacity: expired entries go first, then the
// oldest-stored live entries up to roughly 10% of the table (at least one).
func (m *Memory) evictLocked(now time.Time) {
	m.removeExpiredLocked(now)
	if m.maxKeys <= 0 || len(m.entries) < m.maxKeys {
		return
	}

	target := len(m.entries) / 10
	if target < 1 {
		target = 1
	}

	oldest := make([]string, 0, len(m.entries))
	for key := range m.entries {
		oldest = append(oldest, key)
	}
	sort.Slice(oldest, func(i, j int) bool {
		return m.entries[oldest[i]].seq < m.entries[oldest[j]].seq
	})

	for _, key := range oldest[:target] {
		delete(m.entries, key)
		CacheEvictions.Inc()
	}
	CacheEntries.WithLabelValues("memory").Set(float64(len(m.entries)))

	m.logger.Debug().
		Int("evicted", target).
		Int("remaining", len(m.entries)).
		Msg("Evicted entries under capacity pressure")
}

// removeExpiredLocked removes all expired entries.
func (m *Memory) removeExpiredLocked(now time.Time) int {
	removed := 0
	for key, e := range m.entries {
		if !e.expiresAt.After(now) {
			delete(m.entries, key)
			removed++
		}
	}
	if removed > 0 {
		CacheEntries.WithLabelValues("memory").Set(float64(len(m.entries)))
	}
	return removed
}

// sweepLoop periodically removes expired entries.
func (m *Memory) sweepLoop(period time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.mu.Lock()
			removed := m.removeExpiredLocked(now)
			m.mu.Unlock()

			if removed > 0 {
				m.logger.Debug().Int("removed", removed).Msg("Sweep removed expired entries")
			}
		}
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
