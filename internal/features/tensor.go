package features

import (
	"math"

	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// Tensor packs ragged neighborhoods into a rectangular (N, A, MaxLen) block
// with a sidecar mask. Padding slots hold NaN and are masked out.
type Tensor struct {
	N, A, MaxLen int
	Attributes   []string
	Counts       []int

	data []float64
	mask []bool
}

// NewTensor gathers the given env attributes for every neighborhood.
func NewTensor(env *pointcloud.PointCloud, neighborhoods [][]int, attrs []string) (*Tensor, error) {
	cols := make([][]float64, len(attrs))
	for a, name := range attrs {
		col, err := env.Column(name)
		if err != nil {
			return nil, err
		}
		cols[a] = col
	}
	t := &Tensor{N: len(neighborhoods), A: len(attrs), Attributes: attrs, Counts: make([]int, len(neighborhoods))}
	for i, nb := range neighborhoods {
		t.Counts[i] = len(nb)
		t.MaxLen = max(t.MaxLen, len(nb))
	}
	t.data = make([]float64, t.N*t.A*t.MaxLen)
	t.mask = make([]bool, t.N*t.MaxLen)
	for i, nb := range neighborhoods {
		for a := range attrs {
			row := t.Row(i, a)
			for k := range row {
				if k < len(nb) {
					row[k] = cols[a][nb[k]]
				} else {
					row[k] = math.NaN()
				}
			}
		}
		for k := range nb {
			t.mask[i*t.MaxLen+k] = true
		}
	}
	return t, nil
}

// Row returns the padded values of attribute a in neighborhood n. The slice
// aliases the tensor.
func (t *Tensor) Row(n, a int) []float64 {
	off := (n*t.A + a) * t.MaxLen
	return t.data[off : off+t.MaxLen]
}

// Valid reports whether slot k of neighborhood n holds a real point.
func (t *Tensor) Valid(n, k int) bool { return t.mask[n*t.MaxLen+k] }

// MaskedMean is the mean of attribute a over the valid slots of n, NaN when
// the neighborhood is empty.
func (t *Tensor) MaskedMean(n, a int) float64 {
	row := t.Row(n, a)
	sum, cnt := 0.0, 0
	for k, v := range row {
		if t.Valid(n, k) {
			sum += v
			cnt++
		}
	}
	if cnt == 0 {
		return math.NaN()
	}
	return sum / float64(cnt)
}
