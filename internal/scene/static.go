package scene

import (
	"github.com/go-gl/mathgl/mgl64"

	"raygrid/internal/obstacle"
)

// StaticObstacle is the render description of one sphere.
type StaticObstacle struct {
	Center [3]float64 `json:"center"`
	Radius float64    `json:"radius"`
}

// Static is everything a renderer needs once per connection: the lattice lines,
// the sphere placements and a unit sphere mesh to instance at each of them.
type Static struct {
	HalfSize   float64          `json:"half_size"`
	CellCount  int              `json:"cell_count"`
	CellSize   float64          `json:"cell_size"`
	GridLines  [][3]float64     `json:"grid_lines"`
	Obstacles  []StaticObstacle `json:"obstacles"`
	MeshRings  int              `json:"mesh_rings"`
	MeshSegs   int              `json:"mesh_segments"`
	SphereMesh [][3]float64     `json:"sphere_mesh"`
}

// Static builds the render payload. It is derived data and can be cached.
func (s *Scene) Static() Static {
	unit := obstacle.Must(mgl64.Vec3{}, 1)
	out := Static{
		HalfSize:   s.Bounds.HalfSize(),
		CellCount:  s.Bounds.CellCount,
		CellSize:   s.Bounds.CellSize,
		GridLines:  toArrays(s.Bounds.Lines()),
		Obstacles:  make([]StaticObstacle, 0, s.Obstacles.Len()),
		MeshRings:  obstacle.DefaultRings,
		MeshSegs:   obstacle.DefaultSegments,
		SphereMesh: toArrays(unit.Mesh(obstacle.DefaultRings, obstacle.DefaultSegments)),
	}
	for _, o := range s.Obstacles.All() {
		out.Obstacles = append(out.Obstacles, StaticObstacle{Center: o.Center(), Radius: o.Radius()})
	}
	return out
}

func toArrays(vs []mgl64.Vec3) [][3]float64 {
	out := make([][3]float64, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
