package simulation

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"raygrid/internal/grid"
	"raygrid/internal/logging"
	"raygrid/internal/obstacle"
	"raygrid/internal/particle"
	"raygrid/internal/random"
)

func TestStepperResetsAfterBoundaryExit(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewWithWriter(&buf, "debug")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	var seen []Outcome
	rng := random.NewSequence(30, 200)
	p := mustParticle(t, 90, 0, 0.3)
	stepper := NewStepper(p, obstacle.NewSet(), grid.Default(), rng,
		WithLogger(logger),
		WithObserver(ObserverFunc(func(_ uint64, out Outcome) { seen = append(seen, out) })),
	)

	if out := stepper.Tick(); out.Kind != Traveling {
		t.Fatalf("first tick at x=0.3 should travel, got %s", out.Kind)
	}
	out := stepper.Tick()
	if out.Kind != HitBoundary {
		t.Fatalf("second tick at x=0.6 should exit, got %s", out.Kind)
	}

	state := stepper.Particle()
	if state.Position != (mgl64.Vec3{}) || state.Traveled != 0 {
		t.Fatalf("expected particle back at the origin, got %+v", state)
	}
	if state.Zenith != 30 || state.Azimuth != 200 || state.Speed != 0.3 {
		t.Fatalf("unexpected post-reset direction %+v", state)
	}
	if rng.Draws() != 2 {
		t.Fatalf("expected exactly two draws per reset, got %d", rng.Draws())
	}

	counters := stepper.Counters()
	if counters.Ticks != 2 || counters.BoundaryExits != 1 || counters.ObstacleHits != 0 || counters.Resets() != 1 {
		t.Fatalf("unexpected counters %+v", counters)
	}
	if len(seen) != 2 || seen[1].Kind != HitBoundary {
		t.Fatalf("observer saw %+v", seen)
	}
	logged := buf.String()
	if !strings.Contains(logged, "ray left grid") || !strings.Contains(logged, "half_size") {
		t.Fatalf("expected boundary diagnostics in log, got %s", logged)
	}
}

func TestStepperResetsAfterObstacleHit(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewWithWriter(&buf, "debug")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	set := obstacle.NewSet(obstacle.Must(mgl64.Vec3{0.1, 0, 0}, 0.02))
	stepper := NewStepper(mustParticle(t, 90, 0, 0.1), set, grid.Default(), random.NewSequence(10, 20), WithLogger(logger))

	out := stepper.Tick()
	if out.Kind != HitObstacle || out.Index != 0 {
		t.Fatalf("expected hit on obstacle 0, got %+v", out)
	}
	if out.Position.Position.X() < 0.09 {
		t.Fatalf("outcome should describe the judged position, got %v", out.Position.Position)
	}
	if got := stepper.Particle(); got.Zenith != 10 || got.Azimuth != 20 || got.Position != (mgl64.Vec3{}) {
		t.Fatalf("unexpected reset state %+v", got)
	}
	if c := stepper.Counters(); c.ObstacleHits != 1 || c.Resets() != 1 {
		t.Fatalf("unexpected counters %+v", c)
	}
	if !strings.Contains(buf.String(), "obstacle_center") {
		t.Fatalf("expected hit diagnostics in log, got %s", buf.String())
	}
}

func TestStepperProcessSourceKeepsResetsInRange(t *testing.T) {
	p := particle.NewDefault()
	stepper := NewStepper(p, obstacle.DefaultLattice(), grid.Default(), random.NewProcessSource(7))
	for i := 0; i < 20000; i++ {
		out := stepper.Tick()
		if !out.Kind.Terminal() {
			continue
		}
		state := stepper.Particle()
		if state.Zenith < 0 || state.Zenith >= 180 || state.Azimuth < 0 || state.Azimuth >= 360 {
			t.Fatalf("reset direction out of range: %+v", state)
		}
	}
	if stepper.Counters().Resets() == 0 {
		t.Fatalf("expected at least one reset in 20000 ticks")
	}
}
