package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deniedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "devblog_ratelimit_denied_total",
		Help: "Sends denied by the per-destination token bucket.",
	},
)
