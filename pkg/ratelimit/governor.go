package ratelimit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for admission decisions.
var (
	admittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptgate_ratelimit_admitted_total",
		Help: "Total requests admitted by the rate governor",
	}, []string{"backend"})

	deniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptgate_ratelimit_denied_total",
		Help: "Total requests denied by the rate governor",
	}, []string{"backend"})

	activeIdentities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptgate_ratelimit_active_identities",
		Help: "Identities with a live window in the in-memory governor",
	})
)

// Governor decides whether a caller identity may issue another request
// in its current window.
type Governor interface {
	// Admit counts the request against the identity's current window and
	// reports whether it may proceed. Denial is a normal outcome, not an
	// error; the error return covers backend failures only.
	Admit(ctx context.Context, identity string) (Decision, error)
}
