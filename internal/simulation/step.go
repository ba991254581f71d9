package simulation

import (
	"raygrid/internal/grid"
	"raygrid/internal/obstacle"
	"raygrid/internal/particle"
)

// Kind tags the result of a single tick.
type Kind int

const (
	// Traveling means the ray moved and nothing terminated it.
	Traveling Kind = iota
	// HitObstacle means the post-move position fell inside an obstacle.
	HitObstacle
	// HitBoundary means the post-move position left the grid.
	HitBoundary
)

func (k Kind) String() string {
	switch k {
	case Traveling:
		return "traveling"
	case HitObstacle:
		return "hit_obstacle"
	case HitBoundary:
		return "hit_boundary"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome ends the current flight.
func (k Kind) Terminal() bool { return k == HitObstacle || k == HitBoundary }

// Outcome is the tagged result of Step. Obstacle and Index are only meaningful
// for HitObstacle; Position is where the particle was when the tick was judged.
type Outcome struct {
	Kind     Kind
	Index    int
	Obstacle obstacle.Obstacle
	Position particle.State
}

// Step advances p once and classifies the new position. Obstacles are checked
// before the boundary, so a point that is both outside the grid and inside an
// obstacle reports HitObstacle. Step never resets p; that is the caller's job.
//
// The test is discrete: only the post-move point is examined, so a ray moving
// faster than an obstacle is thick can pass through it between ticks.
func Step(p *particle.Particle, obstacles *obstacle.Set, bounds grid.Bounds) Outcome {
	//1.- Pure kinematic move.
	p.Advance()
	state := p.State()
	//2.- First obstacle in set order wins.
	if hit, ok := obstacles.FirstHit(state.Position); ok {
		return Outcome{Kind: HitObstacle, Index: hit.Index, Obstacle: hit.Obstacle, Position: state}
	}
	//3.- Only then does leaving the cube count.
	if bounds.Outside(state.Position) {
		return Outcome{Kind: HitBoundary, Index: -1, Position: state}
	}
	return Outcome{Kind: Traveling, Index: -1, Position: state}
}
