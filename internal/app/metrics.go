package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devblog_webhook_requests_total",
			Help: "Inbound GitHub webhook requests by terminal outcome.",
		},
		[]string{"outcome"},
	)
	commitsPersistedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devblog_commits_persisted_total",
			Help: "Commit records written from push events.",
		},
	)
)
