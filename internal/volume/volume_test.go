package volume

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarfeatures/internal/errs"
)

func TestAreaOrVolume(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 4*math.Pi/3*0.125, Sphere{R: 0.5}.AreaOrVolume(), 1e-12)
	assert.InDelta(t, math.Pi*4, InfiniteCylinder{R: 2}.AreaOrVolume(), 1e-12)
	assert.Equal(t, 9.0, Cell{S: 3}.AreaOrVolume())
	assert.Equal(t, 27.0, Cube{S: 3}.AreaOrVolume())
}

func TestAreaOrVolume_PositiveAndMonotonic(t *testing.T) {
	t.Parallel()
	for _, typ := range []Type{SphereType, InfiniteCylinderType, CellType, CubeType} {
		prev := 0.0
		for _, size := range []float64{0.01, 0.5, 1, 2.5, 10} {
			v, err := New(typ, size)
			require.NoError(t, err)
			got := v.AreaOrVolume()
			assert.Greater(t, got, prev, "%s size %v", typ, size)
			prev = got
		}
	}
}

func TestContains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		v          Volume
		dx, dy, dz float64
		want       bool
	}{
		{"sphere inside", Sphere{R: 1}, 0.5, 0.5, 0.5, true},
		{"sphere boundary", Sphere{R: 1}, 0, 0, 1, true},
		{"sphere outside", Sphere{R: 1}, 0.6, 0.6, 0.6, false},
		{"cylinder ignores z", InfiniteCylinder{R: 1}, 0.5, 0.5, 100, true},
		{"cylinder outside", InfiniteCylinder{R: 1}, 0.8, 0.8, 0, false},
		{"cell corner", Cell{S: 2}, 1, -1, 50, true},
		{"cell outside", Cell{S: 2}, 1.01, 0, 0, false},
		{"cube inside", Cube{S: 2}, 1, 1, 1, true},
		{"cube above", Cube{S: 2}, 0, 0, 1.01, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Contains(tt.dx, tt.dy, tt.dz))
		})
	}
}

func TestXYRadius(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 2.0, Sphere{R: 2}.XYRadius())
	assert.InDelta(t, math.Sqrt2, Cell{S: 2}.XYRadius(), 1e-12)
	assert.InDelta(t, math.Sqrt2, Cube{S: 2}.XYRadius(), 1e-12)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()
	_, err := New("torus", 1)
	assert.True(t, errors.Is(err, errs.ErrUnknownVolumeType))

	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := New(SphereType, size)
		assert.True(t, errors.Is(err, errs.ErrInvalidInput), "size %v", size)
	}
}

type fakeVolume struct{ Sphere }

func (fakeVolume) Type() Type { return "blob" }

func TestValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Validate(Cube{S: 1}))
	assert.True(t, errors.Is(Validate(Cell{S: -1}), errs.ErrInvalidInput))
	assert.True(t, errors.Is(Validate(nil), errs.ErrInvalidInput))
	assert.True(t, errors.Is(Validate(fakeVolume{Sphere{R: 1}}), errs.ErrUnknownVolumeType))
}

func TestParse(t *testing.T) {
	t.Parallel()
	v, err := Parse("sphere:0.5")
	require.NoError(t, err)
	assert.Equal(t, Sphere{R: 0.5}, v)

	v, err = Parse("Cylinder: 2")
	require.NoError(t, err)
	assert.Equal(t, InfiniteCylinder{R: 2}, v)

	v, err = Parse("infinite cylinder:1")
	require.NoError(t, err)
	assert.Equal(t, InfiniteCylinderType, v.Type())

	_, err = Parse("cube")
	assert.Error(t, err)
	_, err = Parse("cube:abc")
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))
	_, err = Parse("hexagon:1")
	assert.True(t, errors.Is(err, errs.ErrUnknownVolumeType))
}
