package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zkmysql_master_cache_hits_total",
		Help: "Master resolutions served from the TTL cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zkmysql_master_cache_misses_total",
		Help: "Master resolutions that fell through to the live snapshot.",
	})
	rebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zkmysql_master_snapshot_rebuilds_total",
		Help: "Full rebuilds of the watched master snapshot.",
	})
)
