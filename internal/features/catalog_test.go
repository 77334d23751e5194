package features

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

type named struct {
	name     string
	provides []string
}

func (n named) Name() string       { return n.name }
func (named) Requires() []string   { return nil }
func (n named) Provides() []string { return n.provides }
func (named) Params() []any        { return nil }
func (named) Extract(*pointcloud.PointCloud, [][]int, *pointcloud.PointCloud, []int, volume.Volume) ([][]float64, error) {
	return nil, nil
}

func TestCatalog_Register(t *testing.T) {
	t.Parallel()
	c := NewCatalog()
	require.NoError(t, c.Register(named{"a", []string{"f1", "f2"}}))
	assert.Equal(t, 2, c.Len())

	x, err := c.Lookup("f2")
	require.NoError(t, err)
	assert.Equal(t, "a", x.Name())

	tests := []struct {
		name string
		x    Extractor
	}{
		{"duplicate", named{"b", []string{"f3", "f1"}}},
		{"invalid name", named{"c", []string{"3d"}}},
		{"blank", named{"d", []string{""}}},
		{"provides nothing", named{"e", nil}},
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Register(tt.x)
			assert.True(t, errors.Is(err, errs.ErrInvalidInput), "got %v", err)
		})
	}
	// Rejected registrations leave no partial names behind.
	assert.Equal(t, []string{"f1", "f2"}, c.Names())
}

func TestCatalog_BandRatioNames(t *testing.T) {
	t.Parallel()
	c := NewCatalog()
	require.NoError(t, c.Register(named{"band", []string{"band_ratio_z<1", "band_ratio_1<z<2.5", "band_ratio_-1<z"}}))
	assert.Equal(t, 3, c.Len())
}

func TestCatalog_LookupUnknown(t *testing.T) {
	t.Parallel()
	_, err := NewCatalog().Lookup("nothing")
	assert.Equal(t, errs.UnknownFeature, errs.CodeOf(err))
}

func TestCatalog_MustRegisterPanics(t *testing.T) {
	t.Parallel()
	c := NewCatalog()
	c.MustRegister(named{"a", []string{"f"}})
	assert.Panics(t, func() { c.MustRegister(named{"b", []string{"f"}}) })
}

func TestCatalog_ConcurrentRegister(t *testing.T) {
	t.Parallel()
	c := NewCatalog()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Register(named{"x", []string{fmt.Sprintf("f%d", i)}})
			_, _ = c.Lookup("f0")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
}

// sizeOf reports neighborhood size and target index; it needs two points.
type sizeOf struct{ offset float64 }

func (sizeOf) Name() string       { return "size" }
func (sizeOf) Requires() []string { return nil }
func (sizeOf) Provides() []string { return []string{"size", "target"} }
func (s sizeOf) Params() []any    { return []any{s.offset} }
func (sizeOf) MinPoints() int     { return 2 }
func (sizeOf) Sentinel() []float64 {
	return []float64{math.NaN(), -1}
}
func (s sizeOf) ExtractPoint(_ *pointcloud.PointCloud, nb []int, _ *pointcloud.PointCloud, ti int, _ volume.Volume) ([]float64, error) {
	return []float64{float64(len(nb)) + s.offset, float64(ti)}, nil
}
func (s sizeOf) WithParams(kw map[string]any) (PointExtractor, error) {
	if v, ok := kw["offset"].(float64); ok {
		s.offset = v
	}
	return s, nil
}

func TestPerPoint(t *testing.T) {
	t.Parallel()
	x := PerPoint(sizeOf{})
	cols, err := x.Extract(nil, [][]int{{0, 1, 2}, {4}, {}}, nil, []int{7, 8, 9}, volume.Sphere{R: 1})
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, 3.0, cols[0][0])
	assert.True(t, math.IsNaN(cols[0][1]))
	assert.True(t, math.IsNaN(cols[0][2]))
	assert.Equal(t, []float64{7, -1, -1}, cols[1])

	_, err = x.Extract(nil, [][]int{{0}}, nil, []int{1, 2}, volume.Sphere{R: 1})
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))

	cfg, ok := x.(Configurable)
	require.True(t, ok)
	y, err := cfg.WithParams(map[string]any{"offset": 10.0})
	require.NoError(t, err)
	assert.Equal(t, []any{10.0}, y.Params())
	assert.Equal(t, []any{0.0}, x.Params())
}

func TestTensor(t *testing.T) {
	t.Parallel()
	env, err := pointcloud.FromXYZ([]float64{0, 1, 2, 3}, []float64{0, 0, 0, 0}, []float64{10, 20, 30, 40})
	require.NoError(t, err)

	tn, err := NewTensor(env, [][]int{{0, 3}, {}, {1, 2, 3}}, []string{"x", "z"})
	require.NoError(t, err)
	assert.Equal(t, 3, tn.N)
	assert.Equal(t, 2, tn.A)
	assert.Equal(t, 3, tn.MaxLen)
	assert.Equal(t, []int{2, 0, 3}, tn.Counts)

	assert.Equal(t, []float64{10, 40}, tn.Row(0, 1)[:2])
	assert.True(t, math.IsNaN(tn.Row(0, 1)[2]))
	assert.False(t, tn.Valid(0, 2))
	assert.True(t, tn.Valid(2, 2))

	assert.InDelta(t, 25.0, tn.MaskedMean(0, 1), 1e-12)
	assert.True(t, math.IsNaN(tn.MaskedMean(1, 0)))
	assert.InDelta(t, 2.0, tn.MaskedMean(2, 0), 1e-12)

	_, err = NewTensor(env, [][]int{{0}}, []string{"intensity"})
	assert.Equal(t, errs.MissingAttribute, errs.CodeOf(err))
}
