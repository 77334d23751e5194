package csvout

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/testutil"
)

func TestWrite(t *testing.T) {
	t.Parallel()
	pc := testutil.MustCloud(t, []float64{0.1, 2}, []float64{-1, 1e-7}, []float64{math.NaN(), 3})
	require.NoError(t, pc.Add("intensity", pointcloud.Uint16, []float64{12.6, -4}))
	require.NoError(t, pc.Add("band_ratio_z<1", pointcloud.Float32, []float64{0.5, 0.1}))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, pc))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"x", "y", "z", "band_ratio_z<1", "intensity"},
		{"0.1", "-1", "NaN", "0.5", "13"},
		{"2", "1e-07", "3", "0.1", "0"},
	}, rows)
}

func TestWrite_EmptyCloud(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, pointcloud.New()))
	assert.Equal(t, "x,y,z\n", buf.String())
}

func TestWrite_Nil(t *testing.T) {
	t.Parallel()
	assert.True(t, errors.Is(Write(&bytes.Buffer{}, nil), errs.ErrInvalidInput))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWrite_IOError(t *testing.T) {
	t.Parallel()
	pc := testutil.MustCloud(t, []float64{1}, []float64{2}, []float64{3})
	assert.Equal(t, errs.IOError, errs.CodeOf(Write(failingWriter{}, pc)))
}
