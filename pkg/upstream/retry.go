package upstream

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptgate_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptgate_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptgate_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of call attempts (including the
	// initial request).
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// AttemptTimeout bounds a single call attempt, independent of the
	// overall retry budget. Zero disables the per-attempt timeout.
	AttemptTimeout time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		AttemptTimeout:    30 * time.Second,
	}
}

// Retrier wraps a single upstream call with bounded retries and
// exponential backoff. Only transient failures are retried; permanent
// failures propagate immediately.
type Retrier struct {
	config RetryConfig
	logger zerolog.Logger
}

// NewRetrier creates a retry controller with the given configuration.
func NewRetrier(cfg RetryConfig, logger zerolog.Logger) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	return &Retrier{
		config: cfg,
		logger: logger,
	}
}

// Do executes fn with bounded retries. Each attempt runs under its own
// timeout so a hung attempt cannot stall the retry budget. Cancelling
// ctx abandons further attempts promptly.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) (*Response, error)) (*Response, error) {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		resp, err := r.attempt(ctx, fn)
		if err == nil {
			if attempt > 1 {
				r.logger.Info().
					Int("attempt", attempt).
					Msg("Upstream call succeeded after retry")
			}
			return resp, nil
		}

		lastErr = err
		errorClass := Classify(err)

		// Permanent failures propagate immediately.
		if !IsTransient(err) {
			return nil, lastErr
		}

		// A cancelled caller abandons further attempts.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		// If this was the last attempt, don't wait.
		if attempt >= r.config.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(errorClass)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		r.logger.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying upstream call after backoff")

		select {
		case <-ctx.Done():
			r.logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * r.config.BackoffMultiplier)
		if backoff > r.config.MaxBackoff {
			backoff = r.config.MaxBackoff
		}
	}

	errorClass := Classify(lastErr)
	retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	r.logger.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", r.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, r.config.MaxAttempts, lastErr)
}

// attempt runs fn under the per-attempt timeout.
func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) (*Response, error)) (*Response, error) {
	if r.config.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}
