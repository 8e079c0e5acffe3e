package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_watcher_events_processed_total",
			Help: "Count of handled contract events by name",
		},
		[]string{"event"},
	)
	feedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_watcher_feed_messages_total",
			Help: "Count of live feed messages produced",
		},
	)
	pollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_watcher_poll_errors_total",
			Help: "Count of failed chain polls by loop",
		},
		[]string{"loop"},
	)
	eventRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lottery_watcher_events_per_second",
			Help: "Raw contract event throughput over the last second",
		},
	)
)
