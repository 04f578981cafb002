// Package gateway orchestrates the resilient request path: admission by
// the rate governor, completion cache lookup, upstream call through the
// retry controller, cache store, and post-response memory observation.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/promptgate/promptgate/pkg/cache"
	"github.com/promptgate/promptgate/pkg/memory"
	"github.com/promptgate/promptgate/pkg/ratelimit"
	"github.com/promptgate/promptgate/pkg/upstream"
)

// Request is a single inbound chat request.
type Request struct {
	// Identity is the opaque caller key used for rate limiting only.
	// It does not affect the cache fingerprint.
	Identity string

	// Message is the user message text.
	Message string

	// Context is an optional context string.
	Context string

	// Temperature and MaxTokens are generation parameters.
	Temperature float64
	MaxTokens   int
}

// Result is a successful completion.
type Result struct {
	// Text is the completion text.
	Text string

	// Model is the model that produced it.
	Model string

	// Cached reports whether the result was served from cache.
	Cached bool

	// PromptTokens and CompletionTokens report upstream token usage.
	// Zero for cached results that never recorded usage.
	PromptTokens     int
	CompletionTokens int
}

// Config holds the gateway's own tunables. Component configuration
// (ceilings, backoff, thresholds) lives with the injected components.
type Config struct {
	// CacheTTL is how long completions stay servable from cache.
	CacheTTL time.Duration

	// Model is the upstream model name, part of the cache fingerprint.
	Model string

	// Limits bounds inbound requests.
	Limits Limits
}

// sharedCallTimeout bounds a deduplicated upstream call once it runs
// detached from the caller that initiated it.
const sharedCallTimeout = 2 * time.Minute

// tunables are the request-path settings that may change on a config
// reload without rebuilding the gateway.
type tunables struct {
	ttl    time.Duration
	limits Limits
}

// Gateway coordinates the rate governor, cache store, retry controller
// and memory monitor. It holds no per-request state and is safe for
// concurrent use.
type Gateway struct {
	governor ratelimit.Governor
	store    cache.Store
	provider upstream.Provider
	retrier  *upstream.Retrier
	monitor  *memory.Monitor

	model  string
	logger zerolog.Logger

	mu  sync.RWMutex
	tun tunables

	flight singleflight.Group
}

// New creates a gateway. All components except the monitor are required;
// a nil monitor disables memory observation.
func New(
	governor ratelimit.Governor,
	store cache.Store,
	provider upstream.Provider,
	retrier *upstream.Retrier,
	monitor *memory.Monitor,
	cfg Config,
	logger zerolog.Logger,
) (*Gateway, error) {
	if governor == nil {
		return nil, fmt.Errorf("rate governor is required")
	}
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("upstream provider is required")
	}
	if retrier == nil {
		return nil, fmt.Errorf("retry controller is required")
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return &Gateway{
		governor: governor,
		store:    store,
		provider: provider,
		retrier:  retrier,
		monitor:  monitor,
		model:    cfg.Model,
		tun:      tunables{ttl: cfg.CacheTTL, limits: cfg.Limits},
		logger:   logger,
	}, nil
}

// SetTunables applies reloaded request-path settings: the cache TTL for
// new entries and the validation limits. A non-positive TTL is ignored.
// Component-level settings (ceilings, backoff, memory threshold) belong
// to the injected components and require a restart.
func (g *Gateway) SetTunables(cacheTTL time.Duration, limits Limits) {
	if cacheTTL <= 0 {
		g.logger.Warn().Dur("cache_ttl", cacheTTL).Msg("Ignoring non-positive cache TTL")
		return
	}
	g.mu.Lock()
	g.tun = tunables{ttl: cacheTTL, limits: limits}
	g.mu.Unlock()
}

func (g *Gateway) tunables() tunables {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tun
}

// Handle serves one chat request. Terminal outcomes:
//   - (*Result, nil): success, from cache or upstream
//   - *RateLimitError: the caller is over its ceiling
//   - *ValidationError: the request is malformed
//   - any other error: upstream failure (permanent, or transient after
//     retry exhaustion)
func (g *Gateway) Handle(ctx context.Context, req Request) (result *Result, err error) {
	startTime := time.Now()
	outcome := outcomeFailed
	defer func() {
		requestsTotal.WithLabelValues(outcome).Inc()
		requestDuration.WithLabelValues(outcome).Observe(time.Since(startTime).Seconds())
		// Memory observation runs after the response is determined and
		// never delays the caller.
		if g.monitor != nil {
			go g.monitor.Observe(context.WithoutCancel(ctx))
		}
	}()

	if err := g.validate(req); err != nil {
		outcome = outcomeInvalid
		return nil, err
	}

	decision, admitErr := g.governor.Admit(ctx, req.Identity)
	if admitErr != nil {
		// A broken governor backend must not take the service down:
		// fail open and let the request through.
		g.logger.Warn().Err(admitErr).
			Str("identity", req.Identity).
			Msg("Rate governor unavailable, admitting request")
	} else if !decision.Allowed {
		outcome = outcomeDenied
		return nil, &RateLimitError{RetryAfter: decision.RetryAfter}
	}

	fp := cache.Fingerprint{
		Model:       g.model,
		Message:     req.Message,
		Context:     req.Context,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	entry, getErr := g.store.Get(ctx, fp)
	if getErr == nil {
		g.logger.Debug().
			Str("fingerprint", fp.String()).
			Bool("cache_hit", true).
			Msg("Serving completion from cache")
		outcome = outcomeSuccess
		return &Result{
			Text:             entry.Text,
			Model:            entry.Model,
			Cached:           true,
			PromptTokens:     entry.PromptTokens,
			CompletionTokens: entry.CompletionTokens,
		}, nil
	}
	if !errors.Is(getErr, cache.ErrCacheMiss) {
		g.logger.Warn().Err(getErr).
			Str("fingerprint", fp.String()).
			Msg("Cache get error, calling upstream")
	}

	resp, callErr := g.callUpstream(ctx, fp, req)
	if callErr != nil {
		g.logger.Error().Err(callErr).
			Str("identity", req.Identity).
			Msg("Upstream call failed")
		return nil, callErr
	}

	outcome = outcomeSuccess
	return &Result{
		Text:             resp.Text,
		Model:            resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}, nil
}

// callUpstream invokes the provider through the retry controller, with
// concurrent misses for the same fingerprint sharing one in-flight call.
// The shared call stores the result before releasing the waiters. It
// runs under its own detached context so that the disconnect of the
// caller that happened to initiate it cannot fail the others; each
// waiter still honors its own cancellation.
func (g *Gateway) callUpstream(ctx context.Context, fp cache.Fingerprint, req Request) (*upstream.Response, error) {
	ch := g.flight.DoChan(fp.String(), func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()

		resp, err := g.retrier.Do(callCtx, func(ctx context.Context) (*upstream.Response, error) {
			return g.provider.Complete(ctx, upstream.Request{
				Message:     req.Message,
				Context:     req.Context,
				Temperature: req.Temperature,
				MaxTokens:   req.MaxTokens,
			})
		})
		if err != nil {
			return nil, err
		}

		entry := cache.NewEntry(resp.Text, resp.Model, g.tunables().ttl)
		entry.PromptTokens = resp.PromptTokens
		entry.CompletionTokens = resp.CompletionTokens
		if setErr := g.store.Set(callCtx, fp, entry); setErr != nil {
			g.logger.Warn().Err(setErr).
				Str("fingerprint", fp.String()).
				Msg("Failed to cache completion")
		}

		return resp, nil
	})

	select {
	case <-ctx.Done():
		// The shared call keeps running for the remaining waiters and
		// still populates the cache.
		return nil, fmt.Errorf("abandoned in-flight completion: %w", ctx.Err())
	case res := <-ch:
		if res.Shared {
			sharedFlightsTotal.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*upstream.Response), nil
	}
}
