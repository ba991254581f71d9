package simulation

import (
	"sync"
	"time"
)

// TickMetricsSnapshot summarises how long simulation ticks took to compute.
type TickMetricsSnapshot struct {
	Samples  int
	Average  time.Duration
	Max      time.Duration
	Last     time.Duration
	Overruns int
}

// AverageFPS is the rate the host could sustain if ticks ran back to back.
func (s TickMetricsSnapshot) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for the simulation loop. A nil
// monitor ignores every call.
type TickMonitor struct {
	budget time.Duration

	mu       sync.Mutex
	samples  int
	total    time.Duration
	max      time.Duration
	last     time.Duration
	overruns int
}

// NewTickMonitor builds a monitor that counts ticks slower than budget as
// overruns. A zero budget disables overrun tracking.
func NewTickMonitor(budget time.Duration) *TickMonitor {
	return &TickMonitor{budget: budget}
}

// Observe records the duration of a completed tick.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	if m.budget > 0 && duration > m.budget {
		m.overruns++
	}
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	snap := TickMetricsSnapshot{
		Samples:  m.samples,
		Max:      m.max,
		Last:     m.last,
		Overruns: m.overruns,
	}
	total := m.total
	m.mu.Unlock()

	if snap.Samples > 0 {
		snap.Average = total / time.Duration(snap.Samples)
	}
	return snap
}
