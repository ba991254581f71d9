package obstacle

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// DefaultRings and DefaultSegments match the tessellation the viewer expects.
	DefaultRings    = 16
	DefaultSegments = 16
)

// Mesh tessellates the sphere surface into (rings+1)*(segments+1) vertices laid
// out ring by ring. The mesh is render data only; collision never reads it.
func (o Obstacle) Mesh(rings, segments int) []mgl64.Vec3 {
	if rings <= 0 {
		rings = DefaultRings
	}
	if segments <= 0 {
		segments = DefaultSegments
	}
	vertices := make([]mgl64.Vec3, 0, (rings+1)*(segments+1))
	for i := 0; i <= rings; i++ {
		phi := math.Pi * float64(i) / float64(rings)
		for j := 0; j <= segments; j++ {
			theta := 2 * math.Pi * float64(j) / float64(segments)
			vertices = append(vertices, mgl64.Vec3{
				o.center[0] + o.radius*math.Sin(phi)*math.Cos(theta),
				o.center[1] + o.radius*math.Sin(phi)*math.Sin(theta),
				o.center[2] + o.radius*math.Cos(phi),
			})
		}
	}
	return vertices
}
