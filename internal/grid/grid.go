// Package grid builds regular XY grids of target points over a cloud.
package grid

import (
	"math"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// Spec describes a regular grid: Nx by Ny square cells of side Side whose
// lower-left corner is (MinX, MinY).
type Spec struct {
	MinX, MinY float64
	Side       float64
	Nx, Ny     int
}

// Cover returns the grid of side s spanning the XY bounding box of env.
// Every axis gets at least one cell.
func Cover(env *pointcloud.PointCloud, side float64) (Spec, error) {
	if env == nil {
		return Spec{}, errs.New(errs.InvalidInput, "cloud is required")
	}
	if !(side > 0) || math.IsInf(side, 1) {
		return Spec{}, errs.New(errs.InvalidInput, "cell side must be positive and finite, got %v", side)
	}
	x, y, _ := env.XYZ()
	if len(x) == 0 {
		return Spec{}, errs.New(errs.InvalidInput, "cannot build a grid over an empty cloud")
	}
	minX, maxX := x[0], x[0]
	minY, maxY := y[0], y[0]
	for i := range x {
		minX, maxX = math.Min(minX, x[i]), math.Max(maxX, x[i])
		minY, maxY = math.Min(minY, y[i]), math.Max(maxY, y[i])
	}
	return Spec{
		MinX: minX, MinY: minY, Side: side,
		Nx: max(1, int(math.Ceil((maxX-minX)/side))),
		Ny: max(1, int(math.Ceil((maxY-minY)/side))),
	}, nil
}

// Len is the number of cells.
func (s Spec) Len() int { return s.Nx * s.Ny }

// Center returns the centre of cell (i, j).
func (s Spec) Center(i, j int) (x, y float64) {
	return s.MinX + s.Side/2 + float64(i)*s.Side, s.MinY + s.Side/2 + float64(j)*s.Side
}

// Cloud returns the cell centres at height z, x-major.
func (s Spec) Cloud(z float64) (*pointcloud.PointCloud, error) {
	n := s.Len()
	xs, ys, zs := make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n)
	for i := 0; i < s.Nx; i++ {
		for j := 0; j < s.Ny; j++ {
			cx, cy := s.Center(i, j)
			xs = append(xs, cx)
			ys = append(ys, cy)
			zs = append(zs, z)
		}
	}
	return pointcloud.FromXYZ(xs, ys, zs)
}

// Targets returns the cell-centre cloud of side s over env at height 0 and
// records the grid in its provenance.
func Targets(env *pointcloud.PointCloud, side float64) (*pointcloud.PointCloud, error) {
	s, err := Cover(env, side)
	if err != nil {
		return nil, err
	}
	pc, err := s.Cloud(0)
	if err != nil {
		return nil, err
	}
	pc.AddProvenance("grid", side, s.Nx, s.Ny)
	return pc, nil
}
