package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMonitor_BelowThresholdNoReclamation(t *testing.T) {
	// Threshold far above anything a test process allocates.
	m := NewMonitor(1<<40, 0, zerolog.Nop())

	called := false
	m.Register("cache", func(ctx context.Context) int {
		called = true
		return 0
	})

	m.Observe(context.Background())

	if called {
		t.Error("Purge hook should not run below threshold")
	}
	if !m.LastPass().IsZero() {
		t.Error("No reclamation pass should have been recorded")
	}
}

func TestMonitor_AboveThresholdTriggersHooks(t *testing.T) {
	// Threshold of 1 byte: any live heap exceeds it.
	m := NewMonitor(1, 0, zerolog.Nop())

	purged := 0
	m.Register("cache", func(ctx context.Context) int {
		purged++
		return 3
	})
	m.Register("ratelimit", func(ctx context.Context) int {
		purged++
		return 0
	})

	m.Observe(context.Background())

	if purged != 2 {
		t.Errorf("Ran %d purge hooks, want 2", purged)
	}
	if m.LastPass().IsZero() {
		t.Error("Reclamation pass should have been recorded")
	}
}

func TestMonitor_MinIntervalSpacing(t *testing.T) {
	m := NewMonitor(1, time.Hour, zerolog.Nop())

	calls := 0
	m.Register("cache", func(ctx context.Context) int {
		calls++
		return 0
	})

	m.Observe(context.Background())
	m.Observe(context.Background())
	m.Observe(context.Background())

	if calls != 1 {
		t.Errorf("Reclamation ran %d times within minInterval, want 1", calls)
	}
}

func TestMonitor_ZeroThresholdDisabled(t *testing.T) {
	m := NewMonitor(0, 0, zerolog.Nop())

	called := false
	m.Register("cache", func(ctx context.Context) int {
		called = true
		return 0
	})

	m.Observe(context.Background())

	if called {
		t.Error("Zero threshold should disable reclamation")
	}
}

func TestMonitor_ObserveIsFast(t *testing.T) {
	m := NewMonitor(1<<40, time.Minute, zerolog.Nop())

	start := time.Now()
	for i := 0; i < 100; i++ {
		m.Observe(context.Background())
	}
	elapsed := time.Since(start)

	// Sampling must stay far off the request path's critical budget.
	if elapsed > time.Second {
		t.Errorf("100 observations took %v, expected well under 1s", elapsed)
	}
}
