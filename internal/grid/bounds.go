// Package grid describes the static cubic lattice that contains the ray.
package grid

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// DefaultCellCount is the number of cells along each axis.
	DefaultCellCount = 5
	// DefaultCellSize is the edge length of a single cell.
	DefaultCellSize = 0.2
)

// Bounds is the axis aligned cube centred on the origin. It is a value type and
// never changes once the simulation starts.
type Bounds struct {
	CellCount int
	CellSize  float64
}

// Default returns the 5x5x5 lattice of 0.2 cells (half size 0.5).
func Default() Bounds {
	return Bounds{CellCount: DefaultCellCount, CellSize: DefaultCellSize}
}

// Validate rejects lattices that would produce an empty or inverted cube.
func (b Bounds) Validate() error {
	if b.CellCount <= 0 {
		return fmt.Errorf("cell count must be positive, got %d", b.CellCount)
	}
	if !(b.CellSize > 0) || math.IsInf(b.CellSize, 0) {
		return fmt.Errorf("cell size must be a positive finite number, got %v", b.CellSize)
	}
	return nil
}

// HalfSize is half the cube edge: CellCount*CellSize/2.
func (b Bounds) HalfSize() float64 {
	return float64(b.CellCount) * b.CellSize / 2
}

// Contains reports whether every coordinate magnitude is at most HalfSize.
// A point exactly on a face is inside.
func (b Bounds) Contains(p mgl64.Vec3) bool {
	h := b.HalfSize()
	return math.Abs(p[0]) <= h && math.Abs(p[1]) <= h && math.Abs(p[2]) <= h
}

// Outside reports whether any coordinate magnitude exceeds HalfSize.
func (b Bounds) Outside(p mgl64.Vec3) bool {
	return !b.Contains(p)
}

// Lines returns line segment endpoints, two vertices per segment, tracing the
// front (z=-h) and back (z=+h) faces and the edges that join them.
func (b Bounds) Lines() []mgl64.Vec3 {
	n := b.CellCount
	h := b.HalfSize()
	span := float64(n) * b.CellSize
	lines := make([]mgl64.Vec3, 0, 2*(4*(n+1)+(n+1)*(n+1)))
	for _, z := range []float64{-h, h} {
		for i := 0; i <= n; i++ {
			offset := float64(i) * b.CellSize
			lines = append(lines,
				mgl64.Vec3{-h, -h + offset, z}, mgl64.Vec3{-h + span, -h + offset, z},
			)
		}
		for i := 0; i <= n; i++ {
			offset := float64(i) * b.CellSize
			lines = append(lines,
				mgl64.Vec3{-h + offset, -h, z}, mgl64.Vec3{-h + offset, -h + span, z},
			)
		}
	}
	for i := 0; i <= n; i++ {
		for j := 0; j <= n; j++ {
			x := -h + float64(i)*b.CellSize
			y := -h + float64(j)*b.CellSize
			lines = append(lines, mgl64.Vec3{x, y, -h}, mgl64.Vec3{x, y, h})
		}
	}
	return lines
}
