package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invtracker_cache_sweeps_total",
		Help: "Total number of cache cleanup sweeps",
	})

	evictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invtracker_cache_evictions_total",
		Help: "Total number of expired cache records removed, by trigger (read or sweep)",
	}, []string{"trigger"})

	fallbackWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invtracker_cache_fallback_writes_total",
		Help: "Total number of cache writes that fell back to memory after a backend failure",
	})
)
