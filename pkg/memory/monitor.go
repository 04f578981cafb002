// Package memory implements heap usage sampling and threshold-triggered
// reclamation. The gateway observes after each response is determined, so
// sampling and any triggered reclamation never delay the client-visible
// result.
package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for memory monitoring.
var (
	heapBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptgate_heap_bytes",
		Help: "Heap usage observed at the last sample",
	})

	reclamationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptgate_memory_reclamations_total",
		Help: "Total number of memory reclamation passes triggered",
	})

	reclaimedEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptgate_memory_reclaimed_entries_total",
		Help: "Entries removed by reclamation purge hooks",
	}, []string{"hook"})
)

// PurgeFunc frees state eligible for cleanup (expired cache entries,
// stale rate windows) and returns how many items it removed.
type PurgeFunc func(ctx context.Context) int

type hook struct {
	name  string
	purge PurgeFunc
}

// Monitor samples process heap usage and triggers a reclamation pass
// when usage exceeds a fixed threshold. Reclamation is best-effort:
// failing to reduce memory is logged, never an error.
type Monitor struct {
	threshold   uint64
	minInterval time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	hooks    []hook
	lastPass time.Time
	running  bool
}

// NewMonitor creates a monitor that reclaims when heap usage exceeds
// threshold bytes, at most once per minInterval.
func NewMonitor(threshold uint64, minInterval time.Duration, logger zerolog.Logger) *Monitor {
	return &Monitor{
		threshold:   threshold,
		minInterval: minInterval,
		logger:      logger,
	}
}

// Register adds a purge hook run during reclamation passes.
func (m *Monitor) Register(name string, purge PurgeFunc) {
	m.mu.Lock()
	m.hooks = append(m.hooks, hook{name: name, purge: purge})
	m.mu.Unlock()
}

// Observe samples current heap usage and triggers a reclamation pass if
// it exceeds the threshold. At most one pass runs at a time, and passes
// are spaced at least minInterval apart.
func (m *Monitor) Observe(ctx context.Context) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	heapBytes.Set(float64(stats.HeapAlloc))

	if m.threshold == 0 || stats.HeapAlloc <= m.threshold {
		return
	}

	m.mu.Lock()
	if m.running || time.Since(m.lastPass) < m.minInterval {
		m.mu.Unlock()
		return
	}
	m.running = true
	hooks := make([]hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	m.logger.Warn().
		Uint64("heap_bytes", stats.HeapAlloc).
		Uint64("threshold_bytes", m.threshold).
		Msg("Heap usage above threshold, starting reclamation pass")

	m.reclaim(ctx, hooks, stats.HeapAlloc)

	m.mu.Lock()
	m.lastPass = time.Now()
	m.running = false
	m.mu.Unlock()
}

// reclaim runs purge hooks and forces a garbage collection cycle.
func (m *Monitor) reclaim(ctx context.Context, hooks []hook, before uint64) {
	reclamationsTotal.Inc()

	for _, h := range hooks {
		removed := h.purge(ctx)
		if removed > 0 {
			reclaimedEntriesTotal.WithLabelValues(h.name).Add(float64(removed))
		}
		m.logger.Debug().
			Str("hook", h.name).
			Int("removed", removed).
			Msg("Reclamation purge hook finished")
	}

	runtime.GC()
	debug.FreeOSMemory()

	var after runtime.MemStats
	runtime.ReadMemStats(&after)
	heapBytes.Set(float64(after.HeapAlloc))

	m.logger.Info().
		Uint64("heap_bytes_before", before).
		Uint64("heap_bytes_after", after.HeapAlloc).
		Msg("Memory reclamation pass finished")
}

// LastPass returns when the most recent reclamation pass finished.
// Zero time means no pass has run yet.
func (m *Monitor) LastPass() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPass
}
