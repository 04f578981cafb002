package upstream

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Breaker wraps a Provider with a circuit breaker so that a degraded
// upstream fails fast instead of queueing doomed calls. An open breaker
// surfaces as a transient failure, which keeps it retryable once the
// breaker half-opens.
type Breaker struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker
}

// NewBreaker wraps the provider with a circuit breaker.
func NewBreaker(provider Provider, logger zerolog.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: 3,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// Permanent rejections are the caller's fault, not upstream
		// degradation; they must not trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &Breaker{
		provider: provider,
		cb:       cb,
	}
}

// Complete forwards the call through the circuit breaker.
func (b *Breaker) Complete(ctx context.Context, req Request) (*Response, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.provider.Complete(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &Error{
				Class:   ErrorClassTransient,
				Message: "circuit breaker open",
				Err:     err,
			}
		}
		return nil, err
	}
	return result.(*Response), nil
}

// Name identifies the wrapped provider.
func (b *Breaker) Name() string {
	return b.provider.Name()
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
