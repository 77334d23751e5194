package normalize

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/neighborhood"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/testutil"
)

func testOpts() Options {
	return Options{Engine: &neighborhood.Engine{Cache: neighborhood.NewCache()}}
}

func TestNormalize_PerCell(t *testing.T) {
	t.Parallel()
	env := testutil.MustCloud(t, []float64{0, 0, 5}, []float64{0, 0, 0}, []float64{1, 2, 3})
	require.NoError(t, Normalize(context.Background(), env, 2, testOpts()))

	got, err := env.Column(pointcloud.NormalizedHeight)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, got)

	prov := env.Provenance()
	require.Len(t, prov, 1)
	assert.Equal(t, Module, prov[0].Module)
	assert.Equal(t, []any{2.0}, prov[0].Parameters)
}

func TestNormalize_Global(t *testing.T) {
	t.Parallel()
	env := testutil.MustCloud(t, []float64{0, 0, 5}, []float64{0, 0, 0}, []float64{1, 2, 3})
	require.NoError(t, Normalize(context.Background(), env, 0, testOpts()))
	got, _ := env.Column(pointcloud.NormalizedHeight)
	assert.Equal(t, []float64{0, 1, 2}, got)
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()
	var p testutil.Points
	p.AddRandom(testutil.Rand(7), 20, 5, 500)
	env := p.Cloud(t)
	ctx := context.Background()

	require.NoError(t, Normalize(ctx, env, 3, testOpts()))
	first, _ := env.Column(pointcloud.NormalizedHeight)
	first = append([]float64(nil), first...)
	require.NoError(t, Normalize(ctx, env, 3, testOpts()))
	second, _ := env.Column(pointcloud.NormalizedHeight)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, env.ProvenanceLen())

	for i, v := range second {
		assert.GreaterOrEqual(t, v, 0.0, "point %d", i)
	}
}

func TestNormalize_EmptyCloud(t *testing.T) {
	t.Parallel()
	env := pointcloud.New()
	require.NoError(t, Normalize(context.Background(), env, 1, testOpts()))
	assert.True(t, env.Has(pointcloud.NormalizedHeight))
}

func TestNormalize_Invalid(t *testing.T) {
	t.Parallel()
	err := Normalize(context.Background(), nil, 1, testOpts())
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))
	env := testutil.MustCloud(t, []float64{0}, []float64{0}, []float64{0})
	err = Normalize(context.Background(), env, math.NaN(), testOpts())
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))
}

func TestNormalize_Cancelled(t *testing.T) {
	t.Parallel()
	env := testutil.MustCloud(t, []float64{0, 1}, []float64{0, 1}, []float64{0, 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Normalize(ctx, env, 1, testOpts())
	assert.True(t, errors.Is(err, errs.ErrCancelled))
	assert.False(t, env.Has(pointcloud.NormalizedHeight))
}
