package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Terminal outcome labels for requestsTotal.
const (
	outcomeSuccess = "success"
	outcomeDenied  = "denied"
	outcomeFailed  = "failed"
	outcomeInvalid = "invalid"
)

// Prometheus metrics for gateway orchestration.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptgate_requests_total",
		Help: "Total gateway requests by terminal outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptgate_request_duration_seconds",
		Help:    "Gateway request duration in seconds by outcome",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"outcome"})

	sharedFlightsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptgate_shared_flights_total",
		Help: "Requests that piggybacked on an in-flight upstream call for the same fingerprint",
	})

	promptTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptgate_prompt_tokens",
		Help:    "Token count per inbound prompt",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 2000, 4000, 8000, 16000},
	})
)
