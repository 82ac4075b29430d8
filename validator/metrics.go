package validator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var invalidTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "zkmysql_validator_invalid_total",
	Help: "Connections reported invalid to the pool.",
})
