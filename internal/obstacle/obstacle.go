// Package obstacle holds the static spheres the ray can strike.
package obstacle

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Obstacle is an immutable sphere.
type Obstacle struct {
	center mgl64.Vec3
	radius float64
}

// New validates and builds an obstacle.
func New(center mgl64.Vec3, radius float64) (Obstacle, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return Obstacle{}, fmt.Errorf("radius must be a positive finite number, got %v", radius)
	}
	for axis, c := range center {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return Obstacle{}, fmt.Errorf("center component %d is not finite: %v", axis, c)
		}
	}
	return Obstacle{center: center, radius: radius}, nil
}

// Must is New for compile-time layouts; it panics on invalid input.
func Must(center mgl64.Vec3, radius float64) Obstacle {
	o, err := New(center, radius)
	if err != nil {
		panic(err)
	}
	return o
}

// Center returns the sphere centre.
func (o Obstacle) Center() mgl64.Vec3 { return o.center }

// Radius returns the sphere radius.
func (o Obstacle) Radius() float64 { return o.radius }

// Contains is the point-in-sphere test: squared distance <= radius squared.
func (o Obstacle) Contains(p mgl64.Vec3) bool {
	d := p.Sub(o.center)
	return d.Dot(d) <= o.radius*o.radius
}

// String renders the obstacle for logs.
func (o Obstacle) String() string {
	return fmt.Sprintf("sphere(%g, %g, %g; r=%g)", o.center[0], o.center[1], o.center[2], o.radius)
}

// Hit identifies the obstacle that contained a point and its position in the set.
type Hit struct {
	Index    int
	Obstacle Obstacle
}

// Set is an ordered, read-only collection. Order decides which obstacle is
// reported when several contain the same point.
type Set struct {
	items []Obstacle
}

// NewSet copies the obstacles, preserving their order.
func NewSet(items ...Obstacle) *Set {
	return &Set{items: append([]Obstacle(nil), items...)}
}

// Len returns the number of obstacles.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// At returns the obstacle at index i.
func (s *Set) At(i int) Obstacle { return s.items[i] }

// All returns a copy of the obstacles in order.
func (s *Set) All() []Obstacle {
	if s == nil {
		return nil
	}
	return append([]Obstacle(nil), s.items...)
}

// FirstHit walks the set in order and returns the first obstacle containing p.
// Later obstacles are not examined once a match is found.
func (s *Set) FirstHit(p mgl64.Vec3) (Hit, bool) {
	if s == nil {
		return Hit{}, false
	}
	for i, o := range s.items {
		if o.Contains(p) {
			return Hit{Index: i, Obstacle: o}, true
		}
	}
	return Hit{}, false
}
