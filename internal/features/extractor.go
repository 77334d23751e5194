// Package features defines the feature-extractor contract, the catalog that
// maps feature names to extractors, and the orchestrator that evaluates a
// requested set of features over chunks of target points.
package features

import (
	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

// Extractor computes one or more features for a chunk of targets.
//
// Extract receives one neighborhood per entry of targetIndices and returns
// one column per name in Provides, each of length len(neighborhoods).
type Extractor interface {
	// Name is the stable module identifier recorded in provenance.
	Name() string
	// Requires lists features that must already exist on the targets.
	Requires() []string
	// Provides lists the features produced, at least one.
	Provides() []string
	// Params returns the parameters recorded in provenance.
	Params() []any
	Extract(env *pointcloud.PointCloud, neighborhoods [][]int, targets *pointcloud.PointCloud, targetIndices []int, vol volume.Volume) ([][]float64, error)
}

// PointExtractor computes its features for a single neighborhood. PerPoint
// adapts it into an Extractor.
type PointExtractor interface {
	Name() string
	Requires() []string
	Provides() []string
	Params() []any
	ExtractPoint(env *pointcloud.PointCloud, neighborhood []int, targets *pointcloud.PointCloud, targetIndex int, vol volume.Volume) ([]float64, error)
}

// Sentinel is implemented by extractors that need a minimum number of
// points. Smaller neighborhoods get the sentinel values without evaluation:
// PerPoint applies it, batch extractors apply their own.
type Sentinel interface {
	MinPoints() int
	Sentinel() []float64
}

// Configurable extractors accept per-call keyword parameters. WithParams
// returns a configured copy and ignores keys it does not know.
type Configurable interface {
	WithParams(kwargs map[string]any) (Extractor, error)
}

// PointConfigurable is the per-neighborhood counterpart of Configurable.
type PointConfigurable interface {
	WithParams(kwargs map[string]any) (PointExtractor, error)
}

// PerPoint adapts a per-neighborhood extractor into batch form.
func PerPoint(p PointExtractor) Extractor {
	return perPoint{p}
}

type perPoint struct {
	PointExtractor
}

func (a perPoint) WithParams(kwargs map[string]any) (Extractor, error) {
	c, ok := a.PointExtractor.(PointConfigurable)
	if !ok {
		return a, nil
	}
	p, err := c.WithParams(kwargs)
	if err != nil {
		return nil, err
	}
	return perPoint{p}, nil
}

func (a perPoint) Extract(env *pointcloud.PointCloud, neighborhoods [][]int, targets *pointcloud.PointCloud, targetIndices []int, vol volume.Volume) ([][]float64, error) {
	if len(neighborhoods) != len(targetIndices) {
		return nil, errs.New(errs.InvalidInput, "%d neighborhoods for %d targets", len(neighborhoods), len(targetIndices))
	}
	provides := a.Provides()
	out := make([][]float64, len(provides))
	for k := range out {
		out[k] = make([]float64, len(neighborhoods))
	}

	minPoints, sentinel := 0, []float64(nil)
	if s, ok := a.PointExtractor.(Sentinel); ok {
		minPoints, sentinel = s.MinPoints(), s.Sentinel()
	}
	for i, nb := range neighborhoods {
		var vals []float64
		if len(nb) < minPoints {
			vals = sentinel
		} else {
			var err error
			vals, err = a.ExtractPoint(env, nb, targets, targetIndices[i], vol)
			if err != nil {
				return nil, err
			}
		}
		if len(vals) != len(provides) {
			return nil, errs.New(errs.InvalidInput, "extractor %s returned %d values, provides %d", a.Name(), len(vals), len(provides))
		}
		for k, v := range vals {
			out[k][i] = v
		}
	}
	return out, nil
}
