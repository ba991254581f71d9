package simulation

import (
	"sync/atomic"

	"raygrid/internal/grid"
	"raygrid/internal/logging"
	"raygrid/internal/obstacle"
	"raygrid/internal/particle"
	"raygrid/internal/random"
)

// Observer receives every tick result after any reset has been applied.
type Observer interface {
	ObserveTick(tick uint64, outcome Outcome)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(tick uint64, outcome Outcome)

// ObserveTick implements Observer.
func (f ObserverFunc) ObserveTick(tick uint64, outcome Outcome) { f(tick, outcome) }

// Counters summarises outcomes since the stepper was created.
type Counters struct {
	Ticks         uint64
	ObstacleHits  uint64
	BoundaryExits uint64
}

// Resets is the number of times the particle returned to the origin.
func (c Counters) Resets() uint64 { return c.ObstacleHits + c.BoundaryExits }

// Stepper owns the hit-then-reset transition. It is driven from a single
// goroutine; only the counters may be read concurrently.
type Stepper struct {
	particle  *particle.Particle
	obstacles *obstacle.Set
	bounds    grid.Bounds
	rng       random.Source
	logger    *logging.Logger
	observers []Observer

	ticks     atomic.Uint64
	obstacleN atomic.Uint64
	boundaryN atomic.Uint64
}

// StepperOption customises a Stepper.
type StepperOption func(*Stepper)

// WithLogger overrides the logger used for terminal event diagnostics.
func WithLogger(logger *logging.Logger) StepperOption {
	return func(s *Stepper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers an observer for every tick.
func WithObserver(observer Observer) StepperOption {
	return func(s *Stepper) {
		if observer != nil {
			s.observers = append(s.observers, observer)
		}
	}
}

// NewStepper binds the particle to its static world and random source.
func NewStepper(p *particle.Particle, obstacles *obstacle.Set, bounds grid.Bounds, rng random.Source, opts ...StepperOption) *Stepper {
	s := &Stepper{
		particle:  p,
		obstacles: obstacles,
		bounds:    bounds,
		rng:       rng,
		logger:    logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Tick runs one Step and, when it terminates the flight, resets the particle.
// The returned outcome describes the position that was judged, not the reset one.
func (s *Stepper) Tick() Outcome {
	outcome := Step(s.particle, s.obstacles, s.bounds)
	tick := s.ticks.Add(1)

	switch outcome.Kind {
	case HitObstacle:
		s.obstacleN.Add(1)
		s.logger.Debug("ray hit obstacle",
			logging.Uint64("tick", tick),
			logging.Int("obstacle_index", outcome.Index),
			logging.Vec3("obstacle_center", outcome.Obstacle.Center()),
			logging.Float64("obstacle_radius", outcome.Obstacle.Radius()),
		)
		s.particle.Reset(s.rng)
	case HitBoundary:
		s.boundaryN.Add(1)
		s.logger.Debug("ray left grid",
			logging.Uint64("tick", tick),
			logging.Vec3("position", outcome.Position.Position),
			logging.Float64("half_size", s.bounds.HalfSize()),
		)
		s.particle.Reset(s.rng)
	}

	for _, observer := range s.observers {
		observer.ObserveTick(tick, outcome)
	}
	return outcome
}

// Particle exposes the current particle state for renderers.
func (s *Stepper) Particle() particle.State { return s.particle.State() }

// Counters returns a snapshot of the outcome counters.
func (s *Stepper) Counters() Counters {
	return Counters{
		Ticks:         s.ticks.Load(),
		ObstacleHits:  s.obstacleN.Load(),
		BoundaryExits: s.boundaryN.Load(),
	}
}
