// Package particle models the ray tip: a point that travels away from the
// origin along a direction given by two angles.
package particle

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"raygrid/internal/random"
)

const (
	// DefaultZenith and DefaultAzimuth are the launch direction in degrees.
	DefaultZenith  = 45.0
	DefaultAzimuth = 45.0
	// DefaultSpeed is the distance covered per Advance.
	DefaultSpeed = 0.005

	// ZenithRange and AzimuthRange bound the integer degrees drawn on reset.
	ZenithRange  = 180
	AzimuthRange = 360
)

// Particle is the simulated ray tip. Position is cached and only ever derived
// from zenith, azimuth and traveled distance; nothing can set it directly.
type Particle struct {
	zenith   float64
	azimuth  float64
	traveled float64
	speed    float64
	position mgl64.Vec3
}

// State is a read-only copy of a particle for renderers, logs and replays.
type State struct {
	Zenith   float64
	Azimuth  float64
	Traveled float64
	Speed    float64
	Position mgl64.Vec3
}

// New creates a particle at the origin heading along (zenith, azimuth).
func New(zenith, azimuth, speed float64) (*Particle, error) {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return nil, fmt.Errorf("speed must be a positive finite number, got %v", speed)
	}
	if math.IsNaN(zenith) || math.IsNaN(azimuth) || math.IsInf(zenith, 0) || math.IsInf(azimuth, 0) {
		return nil, fmt.Errorf("direction must be finite, got zenith=%v azimuth=%v", zenith, azimuth)
	}
	return &Particle{zenith: zenith, azimuth: azimuth, speed: speed}, nil
}

// NewDefault creates the stock particle: (45°, 45°) at 0.005 per tick.
func NewDefault() *Particle {
	p, _ := New(DefaultZenith, DefaultAzimuth, DefaultSpeed)
	return p
}

// Advance moves the particle one step along its direction. It performs no
// bounds or collision checks.
func (p *Particle) Advance() {
	p.traveled += p.speed
	p.position = Direction(p.zenith, p.azimuth, p.traveled)
}

// Reset returns the particle to the origin and draws a fresh integer zenith in
// [0,180) and azimuth in [0,360) from src. Speed is left unchanged.
func (p *Particle) Reset(src random.Source) {
	p.traveled = 0
	p.position = mgl64.Vec3{}
	p.zenith = float64(src.IntRange(0, ZenithRange))
	p.azimuth = float64(src.IntRange(0, AzimuthRange))
}

// Position returns the cached tip position.
func (p *Particle) Position() mgl64.Vec3 { return p.position }

// Zenith returns the angle from +Y in degrees.
func (p *Particle) Zenith() float64 { return p.zenith }

// Azimuth returns the angle around +Y, measured from +X towards +Z, in degrees.
func (p *Particle) Azimuth() float64 { return p.azimuth }

// Traveled returns the distance covered since the last reset.
func (p *Particle) Traveled() float64 { return p.traveled }

// Speed returns the per-step distance.
func (p *Particle) Speed() float64 { return p.speed }

// State snapshots the particle.
func (p *Particle) State() State {
	return State{
		Zenith:   p.zenith,
		Azimuth:  p.azimuth,
		Traveled: p.traveled,
		Speed:    p.speed,
		Position: p.position,
	}
}

// Direction maps spherical coordinates (y up) to Cartesian:
//
//	x = d·sin(zenith)·cos(azimuth)
//	y = d·cos(zenith)
//	z = d·sin(zenith)·sin(azimuth)
//
// A zenith of exactly 0 or 180 degrees lands on the vertical axis and the
// azimuth no longer matters.
func Direction(zenithDeg, azimuthDeg, distance float64) mgl64.Vec3 {
	phi := mgl64.DegToRad(zenithDeg)
	theta := mgl64.DegToRad(azimuthDeg)
	sinPhi := math.Sin(phi)
	return mgl64.Vec3{
		distance * sinPhi * math.Cos(theta),
		distance * math.Cos(phi),
		distance * sinPhi * math.Sin(theta),
	}
}
