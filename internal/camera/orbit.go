// Package camera holds the orbit controller that turns arrow-key state into a
// view position around the origin.
package camera

import (
	"github.com/go-gl/mathgl/mgl64"

	"raygrid/internal/particle"
)

const (
	// DefaultAzimuth and DefaultPolar are the starting orbit angles in degrees.
	DefaultAzimuth = 45.0
	DefaultPolar   = 45.0
	// DefaultRadius is the eye's distance from the origin.
	DefaultRadius = 3.0
	// RotationSpeed is the degrees applied per tick while a key is held.
	RotationSpeed = 2.0

	// MinPolar and MaxPolar keep the eye off the poles, where the +Y up
	// vector would be parallel to the view direction.
	MinPolar = 1.0
	MaxPolar = 179.0

	// FieldOfView, Near and Far describe the projection the viewer uses.
	FieldOfView = 45.0
	Near        = 0.1
	Far         = 100.0
)

// Orbit is the camera controller state. Only the simulation goroutine mutates it.
type Orbit struct {
	azimuth float64
	polar   float64
	radius  float64
}

// NewOrbit returns the controller at its initial (45°, 45°) position.
func NewOrbit() *Orbit {
	return &Orbit{azimuth: DefaultAzimuth, polar: DefaultPolar, radius: DefaultRadius}
}

// ApplyDelta rotates the orbit. Azimuth is unbounded; polar is clamped to
// [MinPolar, MaxPolar] after the delta is added.
func (o *Orbit) ApplyDelta(dAzimuth, dPolar float64) {
	o.azimuth += dAzimuth
	o.polar = mgl64.Clamp(o.polar+dPolar, MinPolar, MaxPolar)
}

// Azimuth returns the horizontal angle in degrees.
func (o *Orbit) Azimuth() float64 { return o.azimuth }

// Polar returns the angle from +Y in degrees.
func (o *Orbit) Polar() float64 { return o.polar }

// Radius returns the eye distance.
func (o *Orbit) Radius() float64 { return o.radius }

// Eye places the camera with the same spherical mapping the particle uses.
func (o *Orbit) Eye() mgl64.Vec3 {
	return particle.Direction(o.polar, o.azimuth, o.radius)
}

// View looks from the eye at the origin with +Y up.
func (o *Orbit) View() mgl64.Mat4 {
	return mgl64.LookAtV(o.Eye(), mgl64.Vec3{}, mgl64.Vec3{0, 1, 0})
}

// Projection is the perspective matrix for the given viewport aspect ratio.
func Projection(aspect float64) mgl64.Mat4 {
	if !(aspect > 0) {
		aspect = 1
	}
	return mgl64.Perspective(mgl64.DegToRad(FieldOfView), aspect, Near, Far)
}

// State is a snapshot of the orbit for frames.
type State struct {
	Azimuth float64
	Polar   float64
	Eye     mgl64.Vec3
	View    mgl64.Mat4
}

// State snapshots the orbit.
func (o *Orbit) State() State {
	return State{Azimuth: o.azimuth, Polar: o.polar, Eye: o.Eye(), View: o.View()}
}
