package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MemoryGovernor is a mutex-guarded in-process fixed-window governor.
// Stale windows are pruned lazily and by PruneStale.
type MemoryGovernor struct {
	mu      sync.Mutex
	windows map[string]*Window

	ceiling int
	window  time.Duration
	logger  zerolog.Logger
}

// NewMemoryGovernor creates an in-memory governor allowing ceiling
// requests per identity per window.
func NewMemoryGovernor(ceiling int, window time.Duration, logger zerolog.Logger) *MemoryGovernor {
	if ceiling <= 0 {
		panic("ceiling must be positive")
	}
	if window <= 0 {
		panic("window must be positive")
	}
	return &MemoryGovernor{
		windows: make(map[string]*Window),
		ceiling: ceiling,
		window:  window,
		logger:  logger,
	}
}

// Admit counts the request against the identity's current window.
func (g *MemoryGovernor) Admit(_ context.Context, identity string) (Decision, error) {
	now := time.Now()

	g.mu.Lock()
	w, ok := g.windows[identity]
	if !ok || w.Elapsed(g.window, now) {
		w = &Window{Start: now}
		g.windows[identity] = w
	}
	w.Count++
	count := w.Count
	resetAt := w.ResetAt(g.window)
	activeIdentities.Set(float64(len(g.windows)))
	g.mu.Unlock()

	if count > g.ceiling {
		deniedTotal.WithLabelValues("memory").Inc()
		g.logger.Debug().
			Str("identity", identity).
			Int("count", count).
			Msg("Request denied by rate governor")
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: time.Until(resetAt),
		}, nil
	}

	admittedTotal.WithLabelValues("memory").Inc()
	return Decision{
		Allowed:   true,
		Remaining: g.ceiling - count,
	}, nil
}

// PruneStale removes windows whose interval has elapsed and returns how
// many were removed. Called by the memory monitor's reclamation pass.
func (g *MemoryGovernor) PruneStale(_ context.Context) int {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	pruned := 0
	for identity, w := range g.windows {
		if w.Elapsed(g.window, now) {
			delete(g.windows, identity)
			pruned++
		}
	}
	if pruned > 0 {
		activeIdentities.Set(float64(len(g.windows)))
	}
	return pruned
}

// Len returns the number of tracked identities.
func (g *MemoryGovernor) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.windows)
}
