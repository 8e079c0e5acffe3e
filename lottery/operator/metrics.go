package operator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	txAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_operator_tx_attempts_total",
			Help: "Count of submitted operator transactions by action",
		},
		[]string{"action"},
	)
	txAttemptsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_operator_tx_failures_total",
			Help: "Count of rejected, unconfirmed or reverted operator transactions by action",
		},
		[]string{"action"},
	)
)
