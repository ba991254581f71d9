package simulation

import (
	"context"
	"sync"
	"time"
)

// StepFunc runs one fixed simulation tick.
type StepFunc func(step time.Duration)

// maxCatchUp caps how many ticks a single wakeup may replay after a stall, so a
// paused process does not burn through seconds of backlog in one burst.
const maxCatchUp = 5

// Loop drives a StepFunc at a fixed rate. Ticks run on one goroutine, which is
// therefore the only owner of whatever state the StepFunc mutates.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc
	monitor  *TickMonitor

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewLoop configures a loop that targets the provided ticks per second. The
// optional monitor receives the wall time spent inside every StepFunc call.
func NewLoop(targetHz float64, step StepFunc, monitor *TickMonitor) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if step == nil {
		step = func(time.Duration) {}
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{step: interval, stepFunc: step, monitor: monitor}
}

// Start begins ticking until the context is cancelled or Stop is invoked.
// Calling Start on a running loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	l.stop, l.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.step)
		defer ticker.Stop()
		last := time.Now()
		var accumulator time.Duration
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case now := <-ticker.C:
				//1.- Accumulate elapsed time and run fixed steps while catching up.
				accumulator += now.Sub(last)
				last = now
				if limit := maxCatchUp * l.step; accumulator > limit {
					accumulator = limit
				}
				for accumulator >= l.step {
					started := time.Now()
					l.stepFunc(l.step)
					//2.- Timing covers the step itself, not the wait between ticks.
					l.monitor.Observe(time.Since(started))
					accumulator -= l.step
				}
			}
		}
	}()
}

// Stop halts the loop and waits for the tick goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()
	if done == nil {
		return
	}
	close(stop)
	<-done
}

// StepDuration exposes the configured timestep.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
