// Package normalize derives normalized_height, the height of every point
// above a local ground estimate.
package normalize

import (
	"context"
	"errors"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/grid"
	"github.com/banshee-data/lidarfeatures/internal/monitoring"
	"github.com/banshee-data/lidarfeatures/internal/neighborhood"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

// Module is the provenance identifier.
const Module = "normalize"

// Options tunes Normalize.
type Options struct {
	// Engine searches cell neighborhoods; nil means a zero Engine.
	Engine *neighborhood.Engine
}

// Normalize writes normalized_height on env in place. With cellSize <= 0 the
// ground is the global minimum z; otherwise every point takes the minimum z
// of the grid cell of side cellSize that contains it. Points on a shared
// cell edge take the last cell visited; points no cell reaches fall back to
// the global minimum.
func Normalize(ctx context.Context, env *pointcloud.PointCloud, cellSize float64, opts Options) error {
	if env == nil {
		return errs.New(errs.InvalidInput, "cloud is required")
	}
	if math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		return errs.New(errs.InvalidInput, "cell size must be finite, got %v", cellSize)
	}
	_, _, z := env.XYZ()
	out := make([]float64, len(z))
	if len(z) == 0 {
		if err := env.Add(pointcloud.NormalizedHeight, pointcloud.Float64, out); err != nil {
			return err
		}
		env.AddProvenance(Module, cellSize)
		return nil
	}
	global := floats.Min(z)

	ground := make([]float64, len(z))
	for i := range ground {
		ground[i] = math.NaN()
	}
	if cellSize > 0 {
		if err := cellGround(ctx, env, cellSize, opts, z, ground); err != nil {
			return err
		}
	}
	uncovered := 0
	for i := range z {
		g := ground[i]
		if math.IsNaN(g) {
			g = global
			if cellSize > 0 {
				uncovered++
			}
		}
		out[i] = z[i] - g
	}
	if uncovered > 0 {
		monitoring.Logf("normalize: %d points outside every cell use the global minimum", uncovered)
	}
	if err := env.Add(pointcloud.NormalizedHeight, pointcloud.Float64, out); err != nil {
		return err
	}
	env.AddProvenance(Module, cellSize)
	return nil
}

func cellGround(ctx context.Context, env *pointcloud.PointCloud, side float64, opts Options, z, ground []float64) error {
	targets, err := grid.Targets(env, side)
	if err != nil {
		return err
	}
	e := opts.Engine
	if e == nil {
		e = &neighborhood.Engine{}
	}
	stream, err := e.Compute(ctx, env, targets, volume.Cell{S: side})
	if err != nil {
		return err
	}
	for {
		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, nb := range batch {
			if len(nb) == 0 {
				continue
			}
			lo := math.Inf(1)
			for _, i := range nb {
				lo = math.Min(lo, z[i])
			}
			for _, i := range nb {
				ground[i] = lo
			}
		}
	}
}
