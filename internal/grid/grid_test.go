package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/testutil"
)

func TestCover(t *testing.T) {
	t.Parallel()
	env := testutil.MustCloud(t, []float64{0, 0, 5}, []float64{0, 0, 0}, []float64{1, 2, 3})
	s, err := Cover(env, 2)
	require.NoError(t, err)
	assert.Equal(t, Spec{MinX: 0, MinY: 0, Side: 2, Nx: 3, Ny: 1}, s)
	x, y := s.Center(2, 0)
	assert.Equal(t, 5.0, x)
	assert.Equal(t, 1.0, y)
}

func TestTargets(t *testing.T) {
	t.Parallel()
	env := testutil.MustCloud(t, []float64{10, 14}, []float64{-2, 1}, []float64{0, 0})
	targets, err := Targets(env, 1)
	require.NoError(t, err)
	assert.Equal(t, 4*3, targets.Len())

	x, y, z := targets.XYZ()
	assert.Equal(t, []float64{10.5, -1.5, 0}, []float64{x[0], y[0], z[0]})
	assert.Equal(t, []float64{13.5, 0.5}, []float64{x[11], y[11]})

	prov := targets.Provenance()
	require.Len(t, prov, 1)
	assert.Equal(t, "grid", prov[0].Module)
	assert.Equal(t, []any{1.0, 4, 3}, prov[0].Parameters)
}

func TestTargets_Invalid(t *testing.T) {
	t.Parallel()
	env := testutil.MustCloud(t, []float64{0}, []float64{0}, []float64{0})
	for _, side := range []float64{0, -1} {
		_, err := Targets(env, side)
		assert.True(t, errors.Is(err, errs.ErrInvalidInput))
	}
	_, err := Targets(pointcloud.New(), 1)
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))
	_, err = Targets(nil, 1)
	assert.Error(t, err)
}
