package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	viewCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_chain_view_call_errors_total",
			Help: "Count of failed contract view calls by method",
		},
		[]string{"method"},
	)
	eventLogsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_chain_event_logs_fetched_total",
			Help: "Count of decoded contract event logs",
		},
	)
	undecodableLogs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_chain_undecodable_logs_total",
			Help: "Count of contract logs skipped because they could not be decoded",
		},
	)
	txSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_chain_tx_submitted_total",
			Help: "Count of submitted operator transactions by method",
		},
		[]string{"method"},
	)
	txErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_chain_tx_errors_total",
			Help: "Count of failed operator transactions by method",
		},
		[]string{"method"},
	)
)
