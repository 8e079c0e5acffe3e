package enclave

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var keyInjectionRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lottery_enclave_key_injection_rejected_total",
		Help: "Count of rejected operator key injection attempts by reason",
	},
	[]string{"reason"},
)
