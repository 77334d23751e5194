package extractors

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/features"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

// DefaultLayerThickness is the entropy bin width.
const DefaultLayerThickness = 0.5

// Entropy is the Shannon entropy, in bits, of Key binned into layers of
// LayerThickness between ZMin and ZMax. Unset limits come from the
// neighborhood; values outside explicit limits are ignored.
type Entropy struct {
	Key            string
	LayerThickness float64
	ZMin, ZMax     *float64
}

func (e Entropy) Name() string       { return "entropy" }
func (e Entropy) Requires() []string { return nil }
func (e Entropy) Provides() []string { return []string{"entropy_" + e.Key} }

func (e Entropy) Params() []any {
	var lo, hi any
	if e.ZMin != nil {
		lo = *e.ZMin
	}
	if e.ZMax != nil {
		hi = *e.ZMax
	}
	return []any{e.Key, e.LayerThickness, lo, hi}
}

// MinPoints implements features.Sentinel: empty neighborhoods carry no
// information.
func (e Entropy) MinPoints() int      { return 1 }
func (e Entropy) Sentinel() []float64 { return []float64{0} }

// WithParams accepts layer_thickness, z_min and z_max.
func (e Entropy) WithParams(kwargs map[string]any) (features.PointExtractor, error) {
	if v, ok, err := floatParam(kwargs, "layer_thickness"); err != nil {
		return nil, err
	} else if ok {
		if !(v > 0) {
			return nil, errs.New(errs.InvalidInput, "layer_thickness must be positive, got %v", v)
		}
		e.LayerThickness = v
	}
	if v, ok, err := floatParam(kwargs, "z_min"); err != nil {
		return nil, err
	} else if ok {
		e.ZMin = &v
	}
	if v, ok, err := floatParam(kwargs, "z_max"); err != nil {
		return nil, err
	} else if ok {
		e.ZMax = &v
	}
	return e, nil
}

func (e Entropy) ExtractPoint(env *pointcloud.PointCloud, nb []int, _ *pointcloud.PointCloud, _ int, _ volume.Volume) ([]float64, error) {
	col, err := env.Column(e.Key)
	if err != nil {
		return nil, err
	}
	t := e.LayerThickness
	if !(t > 0) {
		t = DefaultLayerThickness
	}
	vals := gather(col, nb, nil)
	lo, hi := floats.Min(vals), floats.Max(vals)
	if e.ZMin != nil {
		lo = *e.ZMin
	}
	if e.ZMax != nil {
		hi = *e.ZMax
	}
	if !(hi > lo) {
		return []float64{0}, nil
	}
	return []float64{layerEntropy(vals, lo, hi, t)}, nil
}

// layerEntropy histograms the values of v in [lo, hi] over edges lo, lo+t,
// ... up to the first edge at or above hi. Bins are half-open except the
// last, which is closed.
func layerEntropy(v []float64, lo, hi, t float64) float64 {
	bins := int(math.Ceil((hi - lo) / t))
	if bins < 1 {
		bins = 1
	}
	counts := make([]float64, bins)
	total := 0.0
	for _, x := range v {
		if x < lo || x > hi {
			continue
		}
		k := int((x - lo) / t)
		if k >= bins {
			k = bins - 1
		}
		counts[k]++
		total++
	}
	if total == 0 {
		return 0
	}
	p := counts[:0]
	for _, c := range counts {
		if c > 0 {
			p = append(p, c/total)
		}
	}
	// stat.Entropy is in nats.
	return stat.Entropy(p) / math.Ln2
}

// BandRatio is the fraction of neighborhood points whose Key lies strictly
// between Lo and Hi. An infinite limit leaves that side open.
type BandRatio struct {
	ratioOfNone
	Lo, Hi float64
	Key    string
}

// NewBandRatio returns the band ratio for (lo, hi); use math.Inf for an open
// side.
func NewBandRatio(lo, hi float64, key string) BandRatio {
	return BandRatio{Lo: lo, Hi: hi, Key: key}
}

func (b BandRatio) Name() string       { return "band_ratio" }
func (b BandRatio) Requires() []string { return nil }
func (b BandRatio) Params() []any      { return []any{b.Lo, b.Hi, b.Key} }

// Provides encodes the interval, e.g. band_ratio_1<normalized_height<2.
func (b BandRatio) Provides() []string {
	name := "band_ratio_"
	if !math.IsInf(b.Lo, -1) {
		name += formatLimit(b.Lo) + "<"
	}
	name += b.Key
	if !math.IsInf(b.Hi, 1) {
		name += "<" + formatLimit(b.Hi)
	}
	return []string{name}
}

func (b BandRatio) Extract(env *pointcloud.PointCloud, neighborhoods [][]int, _ *pointcloud.PointCloud, targetIndices []int, vol volume.Volume) ([][]float64, error) {
	if err := requireVolume(b.Name(), vol, volume.InfiniteCylinderType, volume.CellType); err != nil {
		return nil, err
	}
	if err := checkBatch(neighborhoods, targetIndices); err != nil {
		return nil, err
	}
	col, err := env.Column(b.Key)
	if err != nil {
		return nil, err
	}
	out := columns(len(neighborhoods), 1)
	for i, nb := range neighborhoods {
		if short(b, out, i, nb) {
			continue
		}
		in := 0
		for _, j := range nb {
			if v := col[j]; v > b.Lo && v < b.Hi {
				in++
			}
		}
		out[0][i] = float64(in) / float64(len(nb))
	}
	return out, nil
}
