package las

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/testutil"
)

func sampleCloud(t *testing.T) *pointcloud.PointCloud {
	t.Helper()
	pc := testutil.MustCloud(t,
		[]float64{100.001, 100.5, 101.25},
		[]float64{200, 200.002, 199.75},
		[]float64{10, 11.5, -2.125},
	)
	add := func(name string, d pointcloud.DType, v ...float64) {
		require.NoError(t, pc.Add(name, d, v))
	}
	add(pointcloud.Intensity, pointcloud.Uint16, 10, 65535, 0)
	add(pointcloud.GPSTime, pointcloud.Float64, 1.5, 2.25, 3.125)
	add(pointcloud.RawClassification, pointcloud.Uint8, 2, 1, 130)
	add(ReturnNumber, pointcloud.Uint8, 1, 2, 1)
	add(NumberOfReturns, pointcloud.Uint8, 2, 2, 1)
	add(ScanAngleRank, pointcloud.Int8, -12, 0, 90)
	add(pointcloud.NormalizedHeight, pointcloud.Float64, 0, 1.5, 0.25)
	add("eigenv_1", pointcloud.Float32, 0.5, 0.25, 0.125)
	add("tile", pointcloud.Int32, -7, 0, 1<<20)
	return pc
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	pc := sampleCloud(t)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, pc))

	got, err := Read(bytes.NewReader(buf.Bytes()), []string{All})
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())

	for _, axis := range axes {
		want, _ := pc.Column(axis)
		have, _ := got.Column(axis)
		for i := range want {
			assert.InDelta(t, want[i], have[i], DefaultScale/2, "%s[%d]", axis, i)
		}
	}
	for _, name := range []string{
		pointcloud.Intensity, pointcloud.GPSTime, pointcloud.RawClassification,
		ReturnNumber, NumberOfReturns, ScanAngleRank,
		pointcloud.NormalizedHeight, "eigenv_1", "tile",
	} {
		want, _ := pc.Attribute(name)
		have, ok := got.Attribute(name)
		require.True(t, ok, name)
		assert.Equal(t, want.Type, have.Type, name)
		assert.Equal(t, want.Data, have.Data, name)
	}
	class, _ := got.Column(Classification)
	assert.Equal(t, []float64{2, 1, 2}, class)
	withheld, _ := got.Column(Withheld)
	assert.Equal(t, []float64{0, 0, 1}, withheld)

	assert.Equal(t, 1.0, got.Meta[MetaPointFormat])
	assert.Equal(t, DefaultScale, got.Meta[MetaScalePrefix+pointcloud.X])
	assert.Equal(t, 100.0, got.Meta[MetaOffsetPrefix+pointcloud.X])
	assert.Equal(t, -3.0, got.Meta[MetaOffsetPrefix+pointcloud.Z])
}

func TestRead_DefaultAttributes(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleCloud(t)))
	got, err := Read(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"gps_time", "intensity", "raw_classification", "x", "y", "z"}, got.Names())
}

func TestRead_Selection(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleCloud(t)))
	got, err := Read(bytes.NewReader(buf.Bytes()), []string{"tile", "red", "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tile", "x", "y", "z"}, got.Names())

	_, err = Read(bytes.NewReader(buf.Bytes()), []string{"tile", All})
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))
}

func TestRoundTrip_KeepsQuantization(t *testing.T) {
	t.Parallel()
	pc := testutil.MustCloud(t, []float64{5.25}, []float64{6.5}, []float64{7.75})
	pc.Meta[MetaScalePrefix+pointcloud.X] = 0.25
	pc.Meta[MetaOffsetPrefix+pointcloud.X] = 5
	pc.Meta[MetaPointFormat] = 0

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, pc))
	got, err := Read(&buf, []string{All})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Meta[MetaPointFormat])
	assert.Equal(t, 0.25, got.Meta[MetaScalePrefix+pointcloud.X])
	assert.Equal(t, 5.0, got.Meta[MetaOffsetPrefix+pointcloud.X])
	assert.False(t, got.Has(pointcloud.GPSTime))
	x, _ := got.Column(pointcloud.X)
	assert.Equal(t, []float64{5.25}, x)
}

func TestWrite_ColourSelectsFormat(t *testing.T) {
	t.Parallel()
	pc := testutil.MustCloud(t, []float64{0}, []float64{0}, []float64{0})
	require.NoError(t, pc.Add(Red, pointcloud.Uint16, []float64{65535}))
	require.NoError(t, pc.Add(Blue, pointcloud.Uint16, []float64{3}))
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, pc))
	got, err := Read(&buf, []string{All})
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Meta[MetaPointFormat])
	red, _ := got.Column(Red)
	green, _ := got.Column(Green)
	blue, _ := got.Column(Blue)
	assert.Equal(t, []float64{65535, 0, 3}, []float64{red[0], green[0], blue[0]})
}

// legacy rewrites a 1.4 file without VLRs as LAS 1.2.
func legacy(t *testing.T, b []byte) []byte {
	t.Helper()
	out := append([]byte(nil), b[:headerSize12]...)
	out[25] = 2
	le.PutUint16(out[94:], headerSize12)
	le.PutUint32(out[96:], headerSize12)
	require.Zero(t, le.Uint32(out[100:]))
	return append(out, b[headerSize14:]...)
}

func TestRead_Legacy12(t *testing.T) {
	t.Parallel()
	pc := testutil.MustCloud(t, []float64{1, 2}, []float64{3, 4}, []float64{5, 6})
	require.NoError(t, pc.Add(pointcloud.Intensity, pointcloud.Uint16, []float64{7, 8}))
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, pc))

	got, err := Read(bytes.NewReader(legacy(t, buf.Bytes())), []string{All})
	require.NoError(t, err)
	x, _ := got.Column(pointcloud.X)
	assert.Equal(t, []float64{1, 2}, x)
	in, _ := got.Column(pointcloud.Intensity)
	assert.Equal(t, []float64{7, 8}, in)
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleCloud(t)))
	good := buf.Bytes()

	laz := append([]byte(nil), good...)
	laz[104] |= compressedBit
	truncated := good[:len(good)-5]
	format6 := append([]byte(nil), good...)
	format6[104] = 6
	huge := append([]byte(nil), good...)
	le.PutUint64(huge[247:], 1<<40)
	overflow := append([]byte(nil), good...)
	le.PutUint64(overflow[247:], math.MaxUint64)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not las", []byte("PLY and some more bytes to pass the header size check, padded out to well over two hundred and twenty seven bytes so the signature check is what fails here.............................................")},
		{"laz", laz},
		{"truncated", truncated},
		{"format 6", format6},
		{"count beyond data", huge},
		{"count overflows int", overflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Read(bytes.NewReader(tt.data), nil)
			assert.Equal(t, errs.IOError, errs.CodeOf(err), "%v", err)
		})
	}
}

func TestWrite_Invalid(t *testing.T) {
	t.Parallel()
	assert.Error(t, Write(&bytes.Buffer{}, nil))

	pc := testutil.MustCloud(t, []float64{math.NaN()}, []float64{0}, []float64{0})
	assert.True(t, errors.Is(Write(&bytes.Buffer{}, pc), errs.ErrInvalidInput))

	far := testutil.MustCloud(t, []float64{0, 1e9}, []float64{0, 0}, []float64{0, 0})
	assert.True(t, errors.Is(Write(&bytes.Buffer{}, far), errs.ErrInvalidInput))

	long := testutil.MustCloud(t, []float64{0}, []float64{0}, []float64{0})
	require.NoError(t, long.Add("an_attribute_name_that_is_far_too_long", pointcloud.Float64, []float64{1}))
	assert.True(t, errors.Is(Write(&bytes.Buffer{}, long), errs.ErrInvalidInput))
}

func TestWrite_EmptyCloud(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, pointcloud.New()))
	got, err := Read(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestHeader_ReturnCounts(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleCloud(t)))
	h, err := parseHeader(buf.Bytes()[:headerSize14])
	require.NoError(t, err)
	assert.Equal(t, uint64(3), h.NumPoints)
	assert.Equal(t, uint64(2), h.ReturnCounts[0])
	assert.Equal(t, uint64(1), h.ReturnCounts[1])
	assert.Equal(t, "lidarfeatures dev", h.Software[:len("lidarfeatures dev")])
	assert.Contains(t, h.Describe(), "LAS 1.4 format 1")
}
