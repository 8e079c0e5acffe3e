package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wsClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lottery_server_ws_clients",
			Help: "Number of connected WebSocket clients",
		},
	)
	wsMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_server_ws_messages_sent_total",
			Help: "Count of WebSocket frames fanned out to clients",
		},
	)
)
