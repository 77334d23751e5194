package extractors

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lidarfeatures/internal/monitoring"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

// SigmaZ is the standard deviation of the residuals of a least-squares plane
// z = a + b*x + c*y through the neighborhood. Fewer than three points or a
// singular fit give 0.
type SigmaZ struct{}

func (SigmaZ) Name() string        { return "sigma_z" }
func (SigmaZ) Requires() []string  { return nil }
func (SigmaZ) Provides() []string  { return []string{"sigma_z"} }
func (SigmaZ) Params() []any       { return []any{} }
func (SigmaZ) MinPoints() int      { return 3 }
func (SigmaZ) Sentinel() []float64 { return []float64{0} }

func (SigmaZ) ExtractPoint(env *pointcloud.PointCloud, nb []int, _ *pointcloud.PointCloud, target int, _ volume.Volume) ([]float64, error) {
	x, y, z := env.XYZ()
	n := len(nb)
	xs := gather(x, nb, make([]float64, 0, n))
	ys := gather(y, nb, make([]float64, 0, n))
	zs := gather(z, nb, make([]float64, 0, n))
	mx, my := stat.Mean(xs, nil), stat.Mean(ys, nil)

	a := mat.NewDense(n, 3, nil)
	for i := range nb {
		a.Set(i, 0, 1)
		a.Set(i, 1, xs[i]-mx)
		a.Set(i, 2, ys[i]-my)
	}
	b := mat.NewVecDense(n, zs)
	var coef mat.VecDense
	if err := coef.SolveVec(a, b); err != nil {
		monitoring.Debugf("sigma_z: degenerate plane fit at target %d: %v", target, err)
		return []float64{0}, nil
	}
	var fit mat.VecDense
	fit.MulVec(a, &coef)
	ss := 0.0
	for i := range zs {
		r := zs[i] - fit.AtVec(i)
		ss += r * r
	}
	return []float64{math.Sqrt(ss / float64(n))}, nil
}
