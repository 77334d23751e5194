package formats

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/formats/las"
	"github.com/banshee-data/lidarfeatures/internal/formats/ply"
	"github.com/banshee-data/lidarfeatures/internal/fsutil"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/testutil"
)

func cloud(t *testing.T) *pointcloud.PointCloud {
	t.Helper()
	pc := testutil.MustCloud(t, []float64{1, 2.5}, []float64{3, 4}, []float64{5, 6.25})
	require.NoError(t, pc.Add(pointcloud.Intensity, pointcloud.Uint16, []float64{7, 8}))
	pc.AddProvenance("read", "tile")
	return pc
}

func TestSaveLoad_PLY(t *testing.T) {
	t.Parallel()
	for _, format := range []ply.Format{"", ply.ASCII, ply.BinaryBE} {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()
			fsys := fsutil.NewMemoryFileSystem()
			pc := cloud(t)
			require.NoError(t, Save(fsys, "out/sub/tile.PLY", pc, SaveOptions{PLYFormat: format}))

			raw, err := fsys.ReadFile("out/sub/tile.PLY")
			require.NoError(t, err)
			want := format
			if want == "" {
				want = ply.BinaryLE
			}
			assert.True(t, strings.HasPrefix(string(raw), "ply\nformat "+string(want)+" 1.0\n"))

			got, err := Load(fsys, "out/sub/tile.PLY", LoadOptions{})
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(pc.Attributes(), got.Attributes()))
			assert.Len(t, got.Provenance(), 1)
		})
	}
}

func TestSaveLoad_LAS(t *testing.T) {
	t.Parallel()
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, Save(fsys, "tile.las", cloud(t), SaveOptions{}))

	got, err := Load(fsys, "tile.las", LoadOptions{Attributes: []string{las.All}})
	require.NoError(t, err)
	x, _ := got.Column(pointcloud.X)
	assert.Equal(t, []float64{1, 2.5}, x)
	assert.True(t, got.Has(pointcloud.Intensity))
}

func TestSave_CSV(t *testing.T) {
	t.Parallel()
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, Save(fsys, "tile.csv", cloud(t), SaveOptions{}))
	raw, err := fsys.ReadFile("tile.csv")
	require.NoError(t, err)
	assert.Equal(t, "x,y,z,intensity\n1,3,5,7\n2.5,4,6.25,8\n", string(raw))
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("bad.ply", []byte("not a ply"))
	fsys.WriteFile("tile.laz", []byte("LASF"))

	tests := []struct {
		path string
		code errs.Code
	}{
		{"missing.las", errs.IOError},
		{"tile.laz", errs.IOError},
		{"bad.ply", errs.IOError},
		{"tile.xyz", errs.InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			_, err := Load(fsys, tt.path, LoadOptions{})
			assert.Equal(t, tt.code, errs.CodeOf(err), "%v", err)
		})
	}
}

func TestSave_Errors(t *testing.T) {
	t.Parallel()
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("blocker", []byte("file"))

	assert.Equal(t, errs.IOError, errs.CodeOf(Save(fsys, "out.laz", cloud(t), SaveOptions{})))
	assert.True(t, errors.Is(Save(fsys, "out.txt", cloud(t), SaveOptions{}), errs.ErrInvalidInput))
	assert.True(t, errors.Is(Save(fsys, "out.ply", nil, SaveOptions{}), errs.ErrInvalidInput))
	assert.True(t, errors.Is(Save(fsys, "out.ply", cloud(t), SaveOptions{PLYFormat: "xml"}), errs.ErrInvalidInput))
	assert.Equal(t, errs.IOError, errs.CodeOf(Save(fsys, "blocker/out.ply", cloud(t), SaveOptions{})))
}
