package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks middleware outcomes.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "respcache_requests_total",
			Help: "Total requests seen by the cache middleware by outcome",
		},
		[]string{"outcome"}, // "hit", "miss", "bypass"
	)

	// WritebackErrors tracks failed fire-and-forget cache writes.
	WritebackErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "respcache_writeback_errors_total",
			Help: "Total failed response write-backs to the cache store",
		},
	)
)
