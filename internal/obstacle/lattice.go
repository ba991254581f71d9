package obstacle

import "github.com/go-gl/mathgl/mgl64"

// DefaultRadius is the radius of every sphere in the stock lattice.
const DefaultRadius = 0.02

var (
	latticeX = []float64{0.1, 0.2, 0.3, 0.4}
	latticeY = []float64{-0.1, 0.0, 0.1, 0.2, 0.3, 0.4}
	// Column order is kept from the stock scene: both ends first, then top to
	// bottom, so -0.4 appears twice.
	latticeZ = []float64{
		0.4, -0.4, 0.35, 0.30, 0.25, 0.20, 0.15, 0.10, 0.05,
		0.00, -0.05, -0.10, -0.15, -0.2, -0.25, -0.30, -0.35, -0.40,
	}
)

// DefaultLattice builds the stock scene: columns of small spheres on the +x side
// of the grid, inserted y-major, then x, then z.
func DefaultLattice() *Set {
	items := make([]Obstacle, 0, len(latticeX)*len(latticeY)*len(latticeZ))
	for _, y := range latticeY {
		for _, x := range latticeX {
			for _, z := range latticeZ {
				items = append(items, Must(mgl64.Vec3{x, y, z}, DefaultRadius))
			}
		}
	}
	return NewSet(items...)
}
