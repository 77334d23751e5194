package extractors

import (
	"github.com/golang/geo/r3"

	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

// PointDensity is the neighborhood count per unit area or volume.
type PointDensity struct{}

func (PointDensity) Name() string       { return "point_density" }
func (PointDensity) Requires() []string { return nil }
func (PointDensity) Provides() []string { return []string{"point_density"} }
func (PointDensity) Params() []any      { return []any{} }

func (PointDensity) Extract(_ *pointcloud.PointCloud, neighborhoods [][]int, _ *pointcloud.PointCloud, targetIndices []int, vol volume.Volume) ([][]float64, error) {
	if err := checkBatch(neighborhoods, targetIndices); err != nil {
		return nil, err
	}
	out := columns(len(neighborhoods), 1)
	area := vol.AreaOrVolume()
	for i, nb := range neighborhoods {
		out[0][i] = float64(len(nb)) / area
	}
	return out, nil
}

// EchoRatio is the share of a cylindric neighborhood that also lies within
// the sphere of the same radius around the target, in percent.
type EchoRatio struct {
	ratioOfNone
}

func (EchoRatio) Name() string       { return "echo_ratio" }
func (EchoRatio) Requires() []string { return nil }
func (EchoRatio) Provides() []string { return []string{"echo_ratio"} }
func (EchoRatio) Params() []any      { return []any{} }

func (e EchoRatio) Extract(env *pointcloud.PointCloud, neighborhoods [][]int, targets *pointcloud.PointCloud, targetIndices []int, vol volume.Volume) ([][]float64, error) {
	if err := requireVolume(e.Name(), vol, volume.InfiniteCylinderType); err != nil {
		return nil, err
	}
	if err := checkBatch(neighborhoods, targetIndices); err != nil {
		return nil, err
	}
	ex, ey, ez := env.XYZ()
	tx, ty, tz := targets.XYZ()
	r := vol.Size()
	out := columns(len(neighborhoods), 1)
	for i, nb := range neighborhoods {
		if short(e, out, i, nb) {
			continue
		}
		t := targetIndices[i]
		c := r3.Vector{X: tx[t], Y: ty[t], Z: tz[t]}
		inside := 0
		for _, j := range nb {
			if (r3.Vector{X: ex[j], Y: ey[j], Z: ez[j]}).Sub(c).Norm() <= r {
				inside++
			}
		}
		out[0][i] = float64(inside) / float64(len(nb)) * 100
	}
	return out, nil
}
