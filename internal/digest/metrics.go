package digest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devblog_generation_total",
			Help: "Digests generated, by content source.",
		},
		[]string{"source"},
	)

	generationFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devblog_generation_fallback_total",
			Help: "AI compositions that failed or came back empty and fell back to the template.",
		},
	)
)
