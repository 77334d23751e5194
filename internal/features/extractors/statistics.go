package extractors

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

// statisticNames are the prefixes of the features Statistics provides, in
// column order.
var statisticNames = []string{"max", "min", "range", "mean", "std", "var", "median", "skew", "kurto", "coeff_var"}

// Statistics computes the summary statistics of Key over each neighborhood.
// Moments are population moments; skew and kurtosis are the biased
// estimators, kurtosis in excess form. Empty neighborhoods give NaN.
type Statistics struct {
	Key string
}

func (s Statistics) Name() string       { return "statistics" }
func (s Statistics) Requires() []string { return nil }
func (s Statistics) Params() []any      { return []any{s.Key} }

func (s Statistics) Provides() []string {
	out := make([]string, len(statisticNames))
	for i, p := range statisticNames {
		out[i] = p + "_" + s.Key
	}
	return out
}

func (s Statistics) Extract(env *pointcloud.PointCloud, neighborhoods [][]int, _ *pointcloud.PointCloud, targetIndices []int, _ volume.Volume) ([][]float64, error) {
	if err := checkBatch(neighborhoods, targetIndices); err != nil {
		return nil, err
	}
	col, err := env.Column(s.Key)
	if err != nil {
		return nil, err
	}
	out := columns(len(neighborhoods), len(statisticNames))
	var buf []float64
	for i, nb := range neighborhoods {
		buf = gather(col, nb, buf)
		for k, v := range summarize(buf) {
			out[k][i] = v
		}
	}
	return out, nil
}

func summarize(v []float64) [10]float64 {
	var out [10]float64
	if len(v) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	hi, lo := floats.Max(v), floats.Min(v)
	mean := stat.Mean(v, nil)
	m2 := stat.Moment(2, v, nil)
	std := math.Sqrt(m2)
	out[0] = hi
	out[1] = lo
	out[2] = hi - lo
	out[3] = mean
	out[4] = std
	out[5] = m2
	out[6] = median(v)
	out[7] = stat.Moment(3, v, nil) / math.Pow(m2, 1.5)
	out[8] = stat.Moment(4, v, nil)/(m2*m2) - 3
	out[9] = std / mean
	return out
}

// median sorts v in place.
func median(v []float64) float64 {
	slices.Sort(v)
	n := len(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}

// Percentile is the score at percentile P of Key within each neighborhood,
// linearly interpolated between the closest ranks.
type Percentile struct {
	P   float64
	Key string
}

// NewPercentile validates p in [0, 100].
func NewPercentile(p float64, key string) (Percentile, error) {
	if !(p >= 0 && p <= 100) {
		return Percentile{}, errs.New(errs.InvalidInput, "percentile %v outside [0, 100]", p)
	}
	return Percentile{P: p, Key: key}, nil
}

func (p Percentile) Name() string       { return "percentile" }
func (p Percentile) Requires() []string { return nil }
func (p Percentile) Provides() []string {
	return []string{"perc_" + formatLimit(p.P) + "_" + p.Key}
}
func (p Percentile) Params() []any { return []any{p.P, p.Key} }

func (p Percentile) Extract(env *pointcloud.PointCloud, neighborhoods [][]int, _ *pointcloud.PointCloud, targetIndices []int, _ volume.Volume) ([][]float64, error) {
	if !(p.P >= 0 && p.P <= 100) {
		return nil, errs.New(errs.InvalidInput, "percentile %v outside [0, 100]", p.P)
	}
	if err := checkBatch(neighborhoods, targetIndices); err != nil {
		return nil, err
	}
	col, err := env.Column(p.Key)
	if err != nil {
		return nil, err
	}
	out := columns(len(neighborhoods), 1)
	var buf []float64
	for i, nb := range neighborhoods {
		buf = gather(col, nb, buf)
		out[0][i] = scoreAt(buf, p.P)
	}
	return out, nil
}

// scoreAt sorts v in place and interpolates at rank p/100*(n-1).
func scoreAt(v []float64, p float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	slices.Sort(v)
	rank := p / 100 * float64(len(v)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return v[lo]
	}
	frac := rank - float64(lo)
	return v[lo] + (v[hi]-v[lo])*frac
}
