package cache

import (
	"net/http"
	"time"
)

// Config is the per-route caching policy. The zero value inherits all
// process-wide defaults.
type Config struct {
	// Duration is the TTL for entries written by this route
	// (0 inherits Options.DefaultTTL).
	Duration time.Duration

	// KeyParams is an inclusion allow-list of query/body parameter names
	// folded into the cache key. Empty includes all parameters.
	KeyParams []string

	// IgnoreParams is an exclusion deny-list applied after KeyParams.
	IgnoreParams []string

	// VaryByHeaders lists request headers folded into the cache key.
	VaryByHeaders []string

	// KeyGenerator fully overrides the built-in key derivation when set.
	// Setting it also makes non-GET methods cache-eligible.
	KeyGenerator func(r *http.Request) string
}

// withDefaults merges the process-wide defaults into a route config.
func (c Config) withDefaults(opts Options) Config {
	if c.Duration <= 0 {
		c.Duration = opts.DefaultTTL
	}
	return c
}

// Options is the process-wide cache configuration, read once at startup.
type Options struct {
	// DefaultTTL applies to routes that do not set Config.Duration.
	DefaultTTL time.Duration

	// CheckPeriod is the in-process store's expiry sweep interval.
	CheckPeriod time.Duration

	// MaxKeys is the in-process store's capacity ceiling (<= 0 unbounded).
	MaxKeys int

	// RedisEnabled selects the networked backend. The decision is made
	// once at Manager construction; there is no hot swap.
	RedisEnabled bool

	// RedisURL is the networked backend connection string.
	RedisURL string

	// MaxReconnectAttempts bounds the networked backend's reconnect loop.
	MaxReconnectAttempts int

	// RedisPoolSize is the advisory connection pool size.
	RedisPoolSize int
}

// DefaultOptions returns safe process-wide defaults.
func DefaultOptions() Options {
	return Options{
		DefaultTTL:           5 * time.Minute,
		CheckPeriod:          60 * time.Second,
		MaxKeys:              1000,
		MaxReconnectAttempts: 10,
	}
}

// normalized fills unset fields from DefaultOptions.
func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = def.DefaultTTL
	}
	if o.CheckPeriod <= 0 {
		o.CheckPeriod = def.CheckPeriod
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	return o
}
