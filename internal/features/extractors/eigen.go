package extractors

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lidarfeatures/internal/features"
	"github.com/banshee-data/lidarfeatures/internal/monitoring"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

var eigenNames = []string{
	"eigenv_1", "eigenv_2", "eigenv_3",
	"normal_vector_1", "normal_vector_2", "normal_vector_3",
	"slope",
}

var up = r3.Vector{Z: 1}

// Eigen decomposes the sample covariance of each neighborhood's coordinates.
// It emits the eigenvalues in descending order, the unit eigenvector of the
// smallest one oriented upward as the normal, and the slope tan(angle to
// vertical). Neighborhoods with fewer than three points give NaN throughout.
type Eigen struct{}

func (Eigen) Name() string       { return "eigenvalues" }
func (Eigen) Requires() []string { return nil }
func (Eigen) Provides() []string { return eigenNames }
func (Eigen) Params() []any      { return []any{} }

func (Eigen) Extract(env *pointcloud.PointCloud, neighborhoods [][]int, _ *pointcloud.PointCloud, targetIndices []int, _ volume.Volume) ([][]float64, error) {
	if err := checkBatch(neighborhoods, targetIndices); err != nil {
		return nil, err
	}
	t, err := features.NewTensor(env, neighborhoods, []string{pointcloud.X, pointcloud.Y, pointcloud.Z})
	if err != nil {
		return nil, err
	}
	out := columns(t.N, len(eigenNames))
	var (
		cov   = mat.NewSymDense(3, nil)
		eig   mat.EigenSym
		vecs  mat.Dense
		means [3]float64
	)
	for n := 0; n < t.N; n++ {
		if t.Counts[n] < 3 {
			for k := range out {
				out[k][n] = math.NaN()
			}
			continue
		}
		for a := range 3 {
			means[a] = t.MaskedMean(n, a)
		}
		for a := range 3 {
			ra := t.Row(n, a)
			for b := a; b < 3; b++ {
				rb := t.Row(n, b)
				s := 0.0
				for k := 0; k < t.MaxLen; k++ {
					if t.Valid(n, k) {
						s += (ra[k] - means[a]) * (rb[k] - means[b])
					}
				}
				cov.SetSym(a, b, s/float64(t.Counts[n]-1))
			}
		}
		if !eig.Factorize(cov, true) {
			monitoring.Debugf("eigenvalues: decomposition failed for target %d", targetIndices[n])
			for k := range out {
				out[k][n] = math.NaN()
			}
			continue
		}
		vals := eig.Values(nil)
		eig.VectorsTo(&vecs)
		// Values are ascending.
		out[0][n], out[1][n], out[2][n] = vals[2], vals[1], vals[0]
		normal := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}.Normalize()
		if normal.Z < 0 {
			normal = normal.Mul(-1)
		}
		out[3][n], out[4][n], out[5][n] = normal.X, normal.Y, normal.Z
		out[6][n] = math.Tan(float64(normal.Angle(up)))
	}
	return out, nil
}

var shapeNames = []string{
	"linearity", "planarity", "scattering", "omnivariance",
	"anisotropy", "eigenentropy", "sum_eigenvalues", "change_of_curvature",
}

// EigenShape derives shape descriptors from the eigenvalues already stored
// on the targets.
type EigenShape struct{}

func (EigenShape) Name() string       { return "eigen_shape" }
func (EigenShape) Requires() []string { return []string{"eigenv_1", "eigenv_2", "eigenv_3"} }
func (EigenShape) Provides() []string { return shapeNames }
func (EigenShape) Params() []any      { return []any{} }

func (s EigenShape) Extract(_ *pointcloud.PointCloud, neighborhoods [][]int, targets *pointcloud.PointCloud, targetIndices []int, _ volume.Volume) ([][]float64, error) {
	if err := checkBatch(neighborhoods, targetIndices); err != nil {
		return nil, err
	}
	var ev [3][]float64
	for k, name := range s.Requires() {
		col, err := targets.Column(name)
		if err != nil {
			return nil, err
		}
		ev[k] = col
	}
	out := columns(len(targetIndices), len(shapeNames))
	for i, t := range targetIndices {
		for k, v := range shape(ev[0][t], ev[1][t], ev[2][t]) {
			out[k][i] = v
		}
	}
	return out, nil
}

func shape(l1, l2, l3 float64) [8]float64 {
	sum := l1 + l2 + l3
	ent := 0.0
	for _, l := range [3]float64{l1, l2, l3} {
		if e := l / sum; e > 0 {
			ent -= e * math.Log(e)
		}
	}
	if math.IsNaN(sum) || sum == 0 {
		ent = math.NaN()
	}
	return [8]float64{
		(l1 - l2) / l1,
		(l2 - l3) / l1,
		l3 / l1,
		math.Cbrt(l1 * l2 * l3),
		(l1 - l3) / l1,
		ent,
		sum,
		l3 / sum,
	}
}
