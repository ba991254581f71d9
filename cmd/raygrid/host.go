package main

import (
	"sync"
	"time"

	"raygrid/internal/camera"
	"raygrid/internal/frame"
	"raygrid/internal/simulation"
)

// frameSink receives every frame the simulation produces.
type frameSink interface {
	ObserveFrame(f frame.Frame)
}

// tickPipeline is the body of the simulation loop. It runs on the loop
// goroutine only, which makes that goroutine the sole owner of the orbit and
// the stepper's particle.
type tickPipeline struct {
	stepper *simulation.Stepper
	orbit   *camera.Orbit
	input   *camera.Input
	sinks   []frameSink
}

func newTickPipeline(stepper *simulation.Stepper, orbit *camera.Orbit, input *camera.Input, sinks ...frameSink) *tickPipeline {
	kept := make([]frameSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	return &tickPipeline{stepper: stepper, orbit: orbit, input: input, sinks: kept}
}

// Step polls the key latch, rotates the camera, advances the ray and fans the
// resulting frame out.
func (p *tickPipeline) Step(time.Duration) frame.Frame {
	if p.input != nil {
		keys, _ := p.input.Poll()
		p.orbit.ApplyDelta(keys.Deltas(camera.RotationSpeed))
	}
	outcome := p.stepper.Tick()
	f := frame.Build(p.stepper.Counters().Ticks, outcome, p.stepper.Particle(), p.orbit.State())
	for _, sink := range p.sinks {
		sink.ObserveFrame(f)
	}
	return f
}

// clientCounter is the part of the viewer hub readiness needs.
type clientCounter interface {
	SnapshotClientCounts() (clients, pending int)
	Uptime() time.Duration
}

// hostStatus answers readiness probes. A listener that fails after startup
// marks the host unready until restart.
type hostStatus struct {
	clients clientCounter

	mu  sync.RWMutex
	err error
}

func (s *hostStatus) SnapshotClientCounts() (int, int) {
	if s.clients == nil {
		return 0, 0
	}
	return s.clients.SnapshotClientCounts()
}

func (s *hostStatus) Uptime() time.Duration {
	if s.clients == nil {
		return 0
	}
	return s.clients.Uptime()
}

func (s *hostStatus) StartupError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *hostStatus) fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}
