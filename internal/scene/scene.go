// Package scene assembles the static world the ray flies through: the grid
// bounds and the ordered obstacle set, either the stock layout or one read
// from an INI scene file.
package scene

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/gcfg.v1"

	"raygrid/internal/grid"
	"raygrid/internal/obstacle"
)

// Scene is immutable once built and safe to share between goroutines.
type Scene struct {
	Bounds    grid.Bounds
	Obstacles *obstacle.Set
}

// Default is the stock 5x5x5 grid with the 432 sphere lattice.
func Default() *Scene {
	return &Scene{Bounds: grid.Default(), Obstacles: obstacle.DefaultLattice()}
}

// GridConfig is the [grid] section. Missing values fall back to the defaults.
type GridConfig struct {
	CellCount int
	CellSize  float64
	// Lattice keeps the stock spheres ahead of any file obstacles.
	Lattice bool
}

// ObstacleConfig is one [obstacle "name"] section.
type ObstacleConfig struct {
	// Center holds three components separated by commas or spaces.
	Center string
	Radius float64
	// Order sorts obstacles before the name does; ties fall back to the name.
	Order int
}

// FileConfig mirrors the layout of a scene file.
type FileConfig struct {
	Grid     GridConfig
	Obstacle map[string]*ObstacleConfig
}

// ReadFile loads a scene file.
func ReadFile(path string) (*Scene, error) {
	cfg := FileConfig{}
	if err := gcfg.ReadFileInto(&cfg, path); err != nil {
		return nil, fmt.Errorf("read scene %s: %w", path, err)
	}
	return cfg.Build()
}

// ReadString parses scene text; tests and tools use it directly.
func ReadString(text string) (*Scene, error) {
	cfg := FileConfig{}
	if err := gcfg.ReadStringInto(&cfg, text); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	return cfg.Build()
}

// Build validates the parsed configuration and produces the scene.
func (c FileConfig) Build() (*Scene, error) {
	bounds := grid.Default()
	if c.Grid.CellCount != 0 {
		bounds.CellCount = c.Grid.CellCount
	}
	if c.Grid.CellSize != 0 {
		bounds.CellSize = c.Grid.CellSize
	}
	if err := bounds.Validate(); err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}

	var items []obstacle.Obstacle
	if c.Grid.Lattice || len(c.Obstacle) == 0 {
		items = append(items, obstacle.DefaultLattice().All()...)
	}

	//1.- Map iteration is random, so pin the order before building the set.
	names := make([]string, 0, len(c.Obstacle))
	for name := range c.Obstacle {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := c.Obstacle[names[i]], c.Obstacle[names[j]]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return names[i] < names[j]
	})

	//2.- Validate each section and report it by name.
	for _, name := range names {
		oc := c.Obstacle[name]
		center, err := parseCenter(oc.Center)
		if err != nil {
			return nil, fmt.Errorf("obstacle %q: %w", name, err)
		}
		o, err := obstacle.New(center, oc.Radius)
		if err != nil {
			return nil, fmt.Errorf("obstacle %q: %w", name, err)
		}
		items = append(items, o)
	}
	return &Scene{Bounds: bounds, Obstacles: obstacle.NewSet(items...)}, nil
}

func parseCenter(raw string) (mgl64.Vec3, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("center needs exactly three components, got %q", raw)
	}
	var center mgl64.Vec3
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return mgl64.Vec3{}, fmt.Errorf("center component %d: %w", i, err)
		}
		center[i] = v
	}
	return center, nil
}
