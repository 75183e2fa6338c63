package codegen

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckviz_generation_requests_total",
			Help: "Total number of code generation requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	generationLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckviz_generation_latency_seconds",
			Help:    "Language model round-trip latency for code generation.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(generationRequestsTotal, generationLatencySeconds)
}

func observeGeneration(provider, outcome string, elapsed time.Duration) {
	generationRequestsTotal.WithLabelValues(provider, outcome).Inc()
	generationLatencySeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}
