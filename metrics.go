package zkmysql

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var failoversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "zkmysql_failovers_total",
	Help: "Number of times a logical connection replaced its physical connection.",
}, []string{"database_id"})
