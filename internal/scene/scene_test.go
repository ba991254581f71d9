package scene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"raygrid/internal/obstacle"
)

func TestDefaultScene(t *testing.T) {
	s := Default()
	require.Equal(t, 0.5, s.Bounds.HalfSize())
	require.Equal(t, 432, s.Obstacles.Len())
}

func TestReadStringOrdersObstacles(t *testing.T) {
	s, err := ReadString(`
[grid]
cellcount = 4
cellsize = 0.25

[obstacle "zeta"]
center = 0.1, -0.1, 0
radius = 0.02
order = 1

[obstacle "alpha"]
center = 0.2 0.2 0.2
radius = 0.05
order = 1

[obstacle "first"]
center = 0,0,0.3
radius = 0.01
`)
	require.NoError(t, err)
	require.Equal(t, 4, s.Bounds.CellCount)
	require.Equal(t, 0.5, s.Bounds.HalfSize())
	require.Equal(t, 3, s.Obstacles.Len())
	require.Equal(t, mgl64.Vec3{0, 0, 0.3}, s.Obstacles.At(0).Center())
	require.Equal(t, mgl64.Vec3{0.2, 0.2, 0.2}, s.Obstacles.At(1).Center())
	require.Equal(t, mgl64.Vec3{0.1, -0.1, 0}, s.Obstacles.At(2).Center())
}

func TestReadStringKeepsLatticeWhenAsked(t *testing.T) {
	s, err := ReadString(`
[grid]
lattice = true

[obstacle "extra"]
center = 0 0 0
radius = 0.1
`)
	require.NoError(t, err)
	require.Equal(t, 433, s.Obstacles.Len())
	require.Equal(t, mgl64.Vec3{0, 0, 0}, s.Obstacles.At(432).Center())
}

func TestReadStringWithoutObstaclesUsesLattice(t *testing.T) {
	s, err := ReadString("[grid]\ncellsize = 0.1\n")
	require.NoError(t, err)
	require.Equal(t, 0.25, s.Bounds.HalfSize())
	require.Equal(t, obstacle.DefaultLattice().Len(), s.Obstacles.Len())
}

func TestReadStringRejectsInvalidScenes(t *testing.T) {
	cases := map[string]string{
		"negative cells": "[grid]\ncellcount = -1\n",
		"two components": "[obstacle \"a\"]\ncenter = 0 0\nradius = 0.1\n",
		"bad number":     "[obstacle \"a\"]\ncenter = 0 x 0\nradius = 0.1\n",
		"zero radius":    "[obstacle \"a\"]\ncenter = 0 0 0\n",
		"unknown key":    "[grid]\nwidth = 3\n",
	}
	for name, text := range cases {
		_, err := ReadString(text)
		require.Error(t, err, name)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.ini")
	require.NoError(t, os.WriteFile(path, []byte("[obstacle \"one\"]\ncenter = 0.1 0.1 0.1\nradius = 0.03\n"), 0o644))
	s, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, s.Obstacles.Len())

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.ini"))
	require.Error(t, err)
}

func TestStaticPayload(t *testing.T) {
	static := Default().Static()
	require.Equal(t, 0.5, static.HalfSize)
	require.Len(t, static.GridLines, 2*(4*6+36))
	require.Len(t, static.Obstacles, 432)
	require.Equal(t, [3]float64{0.1, -0.1, 0.4}, static.Obstacles[0].Center)
	require.Len(t, static.SphereMesh, 17*17)
}
