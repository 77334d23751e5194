package pointcloud

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/timeutil"
)

func threePoints(t *testing.T) *PointCloud {
	t.Helper()
	pc, err := FromXYZ([]float64{0, 1, 2}, []float64{0, 0, 0}, []float64{5, 6, 7})
	require.NoError(t, err)
	return pc
}

func TestNew_HasCoordinates(t *testing.T) {
	t.Parallel()
	pc := New()
	assert.Equal(t, 0, pc.Len())
	assert.Equal(t, []string{"x", "y", "z"}, pc.Names())
	assert.NotEqual(t, pc.ID(), New().ID())
}

func TestFromXYZ_LengthMismatch(t *testing.T) {
	t.Parallel()
	_, err := FromXYZ([]float64{1}, []float64{1, 2}, []float64{1})
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))
}

func TestAdd(t *testing.T) {
	t.Parallel()

	t.Run("length enforced", func(t *testing.T) {
		t.Parallel()
		pc := threePoints(t)
		err := pc.Add(Intensity, Uint16, []float64{1, 2})
		assert.True(t, errors.Is(err, errs.ErrInvalidInput))
		require.NoError(t, pc.Add(Intensity, Uint16, []float64{1, 2, 3}))
		a, ok := pc.Attribute(Intensity)
		require.True(t, ok)
		assert.Equal(t, Uint16, a.Type)
	})

	t.Run("empty cloud grows", func(t *testing.T) {
		t.Parallel()
		pc := New()
		require.NoError(t, pc.Add(X, Float64, []float64{1, 2}))
		require.NoError(t, pc.Add(Y, Float64, []float64{3, 4}))
		assert.Equal(t, 2, pc.Len())
		z, err := pc.Column(Z)
		require.NoError(t, err)
		assert.Len(t, z, 2)
	})

	t.Run("bad dtype", func(t *testing.T) {
		t.Parallel()
		pc := threePoints(t)
		assert.Error(t, pc.Add("a", DType("complex"), []float64{1, 2, 3}))
	})
}

func TestSetAt_LeavesOtherIndicesUntouched(t *testing.T) {
	t.Parallel()
	pc := threePoints(t)

	require.NoError(t, pc.SetAt("feature", Float64, []int{2, 0}, []float64{20, 10}))
	col, err := pc.Column("feature")
	require.NoError(t, err)
	assert.Equal(t, 10.0, col[0])
	assert.True(t, math.IsNaN(col[1]))
	assert.Equal(t, 20.0, col[2])

	require.NoError(t, pc.SetAt("feature", Float64, []int{1}, []float64{15}))
	assert.Equal(t, []float64{10, 15, 20}, col)

	assert.Error(t, pc.SetAt("feature", Float64, []int{3}, []float64{1}))
	assert.Error(t, pc.SetAt("feature", Float64, []int{0, 1}, []float64{1}))
	assert.Error(t, pc.SetAt(X, Float64, []int{0}, []float64{1}))
	assert.False(t, pc.Has("never"))
	assert.Error(t, pc.SetAt("never", Float64, []int{-1}, []float64{1}))
	assert.False(t, pc.Has("never"), "failed write must not create a column")
}

func TestColumn_Missing(t *testing.T) {
	t.Parallel()
	pc := threePoints(t)
	_, err := pc.Column(RawClassification)
	assert.True(t, errors.Is(err, errs.ErrMissingAttribute))
}

func TestDrop(t *testing.T) {
	t.Parallel()
	pc := threePoints(t)
	require.NoError(t, pc.Add("tmp", Float64, []float64{1, 2, 3}))
	require.NoError(t, pc.Drop("tmp"))
	assert.False(t, pc.Has("tmp"))
	assert.Error(t, pc.Drop(Z))
}

func TestOrderedNames(t *testing.T) {
	t.Parallel()
	pc := threePoints(t)
	require.NoError(t, pc.Add("b", Float64, []float64{1, 2, 3}))
	require.NoError(t, pc.Add("a", Float64, []float64{1, 2, 3}))
	assert.Equal(t, []string{"x", "y", "z", "a", "b"}, pc.OrderedNames())
}

func TestSubsetAndCopy(t *testing.T) {
	t.Parallel()
	pc := threePoints(t)
	require.NoError(t, pc.Add(Intensity, Uint16, []float64{10, 11, 12}))
	pc.Meta["x_offset"] = 100
	pc.AddProvenance("load", "file.las")

	sub, err := pc.Subset([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, sub.Len())
	x, _, _ := sub.XYZ()
	assert.Equal(t, []float64{2, 0}, x)
	in, err := sub.Column(Intensity)
	require.NoError(t, err)
	assert.Equal(t, []float64{12, 10}, in)
	assert.Equal(t, 100.0, sub.Meta["x_offset"])
	assert.Equal(t, 1, sub.ProvenanceLen())
	assert.NotEqual(t, pc.ID(), sub.ID())

	_, err = pc.Subset([]int{5})
	assert.Error(t, err)

	cp := pc.Copy()
	if diff := cmp.Diff(pc.Attributes(), cp.Attributes(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("copy differs (-orig +copy):\n%s", diff)
	}
	require.NoError(t, cp.SetAt(Intensity, Uint16, []int{0}, []float64{99}))
	orig, _ := pc.Column(Intensity)
	assert.Equal(t, 10.0, orig[0])
}

func TestProvenance(t *testing.T) {
	t.Parallel()
	pc := threePoints(t)
	clock := timeutil.NewMockClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)))
	clock.SetStep(time.Second)
	pc.SetClock(clock)

	pc.AddProvenance("normalize", 2.0)
	pc.AddProvenance("compute_features")

	recs := pc.Provenance()
	require.Len(t, recs, 2)
	assert.Equal(t, "normalize", recs[0].Module)
	assert.Equal(t, []any{2.0}, recs[0].Parameters)
	assert.Equal(t, []any{}, recs[1].Parameters)
	assert.Equal(t, time.UTC, recs[0].Time.Location())
	assert.True(t, recs[1].Time.After(recs[0].Time))

	recs[0].Module = "mutated"
	assert.Equal(t, "normalize", pc.Provenance()[0].Module)
}

func TestDTypeCast(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 255.0, Uint8.Cast(300))
	assert.Equal(t, 0.0, Uint16.Cast(-4))
	assert.Equal(t, -3.0, Int8.Cast(-2.6))
	assert.Equal(t, 0.0, Int32.Cast(math.NaN()))
	assert.Equal(t, float64(float32(0.1)), Float32.Cast(0.1))
	assert.Equal(t, 0.1, Float64.Cast(0.1))
	assert.Equal(t, 8, Float64.Size())
	assert.True(t, Int16.IsSigned())
	assert.False(t, Uint16.IsSigned())
	assert.False(t, DType("x").Valid())
}
