package extractors

import (
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

// PulsePenetration is the fraction of neighborhood points classified as
// ground.
type PulsePenetration struct {
	ratioOfNone
}

func (PulsePenetration) Name() string       { return "pulse_penetration_ratio" }
func (PulsePenetration) Requires() []string { return nil }
func (PulsePenetration) Provides() []string { return []string{"pulse_penetration_ratio"} }
func (PulsePenetration) Params() []any      { return []any{} }

func (p PulsePenetration) Extract(env *pointcloud.PointCloud, neighborhoods [][]int, _ *pointcloud.PointCloud, targetIndices []int, _ volume.Volume) ([][]float64, error) {
	if err := checkBatch(neighborhoods, targetIndices); err != nil {
		return nil, err
	}
	class, err := env.Column(pointcloud.RawClassification)
	if err != nil {
		return nil, err
	}
	out := columns(len(neighborhoods), 1)
	for i, nb := range neighborhoods {
		if short(p, out, i, nb) {
			continue
		}
		ground := 0
		for _, j := range nb {
			if class[j] == groundClass {
				ground++
			}
		}
		out[0][i] = float64(ground) / float64(len(nb))
	}
	return out, nil
}

// DensityAbsoluteMean is, among non-ground neighborhood points, the
// percentage whose Key value exceeds the mean Key of those points.
type DensityAbsoluteMean struct {
	Key string
}

func (d DensityAbsoluteMean) Name() string       { return "density_absolute_mean" }
func (d DensityAbsoluteMean) Requires() []string { return nil }
func (d DensityAbsoluteMean) Provides() []string {
	return []string{"density_absolute_mean_" + d.Key}
}
func (d DensityAbsoluteMean) Params() []any { return []any{d.Key} }

func (d DensityAbsoluteMean) Extract(env *pointcloud.PointCloud, neighborhoods [][]int, _ *pointcloud.PointCloud, targetIndices []int, _ volume.Volume) ([][]float64, error) {
	if err := checkBatch(neighborhoods, targetIndices); err != nil {
		return nil, err
	}
	class, err := env.Column(pointcloud.RawClassification)
	if err != nil {
		return nil, err
	}
	vals, err := env.Column(d.Key)
	if err != nil {
		return nil, err
	}
	out := columns(len(neighborhoods), 1)
	var buf []float64
	for i, nb := range neighborhoods {
		buf = buf[:0]
		for _, j := range nb {
			if class[j] != groundClass {
				buf = append(buf, vals[j])
			}
		}
		if len(buf) == 0 {
			continue
		}
		mean := stat.Mean(buf, nil)
		above := 0
		for _, v := range buf {
			if v > mean {
				above++
			}
		}
		out[0][i] = float64(above) / float64(len(buf)) * 100
	}
	return out, nil
}
