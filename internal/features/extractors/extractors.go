// Package extractors holds the reference feature extractors and the default
// catalog that registers them.
package extractors

import (
	"fmt"
	"math"
	"strconv"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/features"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

// groundClass is the ASPRS ground classification code.
const groundClass = 2

// StatisticKeys are the attributes that get the full statistics battery.
var StatisticKeys = []string{pointcloud.Z, pointcloud.NormalizedHeight, pointcloud.Intensity}

// HeightKeys are the attributes that additionally get entropy, percentiles,
// band ratios and the density above mean.
var HeightKeys = []string{pointcloud.Z, pointcloud.NormalizedHeight}

// RegisterDefaults registers the reference set on c.
func RegisterDefaults(c *features.Catalog) error {
	xs := []features.Extractor{
		PointDensity{},
		EchoRatio{},
		PulsePenetration{},
		features.PerPoint(SigmaZ{}),
		Eigen{},
		EigenShape{},
	}
	for _, key := range StatisticKeys {
		xs = append(xs, Statistics{Key: key})
	}
	for _, key := range HeightKeys {
		xs = append(xs, features.PerPoint(Entropy{Key: key, LayerThickness: DefaultLayerThickness}))
		xs = append(xs, DensityAbsoluteMean{Key: key})
		for p := 1; p <= 100; p++ {
			x, err := NewPercentile(float64(p), key)
			if err != nil {
				return err
			}
			xs = append(xs, x)
		}
		for _, b := range [][2]float64{
			{math.Inf(-1), 1},
			{1, 2},
			{2, 3},
			{3, math.Inf(1)},
		} {
			xs = append(xs, NewBandRatio(b[0], b[1], key))
		}
	}
	for _, x := range xs {
		if err := c.Register(x); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultCatalog returns a catalog holding the reference set.
func NewDefaultCatalog() *features.Catalog {
	c := features.NewCatalog()
	if err := RegisterDefaults(c); err != nil {
		panic(fmt.Sprintf("extractors: default registration: %v", err))
	}
	return c
}

// gather returns the values of col at the neighborhood indices.
func gather(col []float64, nb []int, dst []float64) []float64 {
	dst = dst[:0]
	for _, i := range nb {
		dst = append(dst, col[i])
	}
	return dst
}

func columns(n, k int) [][]float64 {
	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, n)
	}
	return out
}

// ratioOfNone is the sentinel of ratios over a neighborhood: NaN when it is
// empty.
type ratioOfNone struct{}

func (ratioOfNone) MinPoints() int      { return 1 }
func (ratioOfNone) Sentinel() []float64 { return []float64{math.NaN()} }

// short writes the sentinel of s to row i of out when nb has fewer points
// than s needs.
func short(s features.Sentinel, out [][]float64, i int, nb []int) bool {
	if len(nb) >= s.MinPoints() {
		return false
	}
	for k, v := range s.Sentinel() {
		out[k][i] = v
	}
	return true
}

func checkBatch(neighborhoods [][]int, targetIndices []int) error {
	if len(neighborhoods) != len(targetIndices) {
		return errs.New(errs.InvalidInput, "%d neighborhoods for %d targets", len(neighborhoods), len(targetIndices))
	}
	return nil
}

func requireVolume(name string, vol volume.Volume, allowed ...volume.Type) error {
	for _, t := range allowed {
		if vol.Type() == t {
			return nil
		}
	}
	return errs.New(errs.VolumeMismatch, "%s is not defined for a %s volume", name, vol.Type())
}

// formatLimit renders an interval limit the way feature names carry it.
func formatLimit(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func floatParam(kwargs map[string]any, key string) (float64, bool, error) {
	v, ok := kwargs[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false, errs.Wrap(err, errs.InvalidInput, "parameter %s", key)
		}
		return f, true, nil
	}
	return 0, false, errs.New(errs.InvalidInput, "parameter %s: unsupported type %T", key, v)
}
