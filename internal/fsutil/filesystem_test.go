package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExt(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"cloud.LAS":         "las",
		"dir/out.ply":       "ply",
		"a.b/c.csv":         "csv",
		"noext":             "",
		"/tmp/x.tar.laz":    "laz",
		"./relative/p.Yaml": "yaml",
	}
	for in, want := range tests {
		assert.Equal(t, want, Ext(in), in)
	}
}

func TestMemoryFileSystem_CreateAndRead(t *testing.T) {
	t.Parallel()
	m := NewMemoryFileSystem()

	w, err := m.Create("points.ply")
	require.NoError(t, err)
	_, err = w.Write([]byte("ply\n"))
	require.NoError(t, err)
	assert.False(t, m.Exists("missing.ply"))
	require.NoError(t, w.Close())

	data, err := m.ReadFile("points.ply")
	require.NoError(t, err)
	assert.Equal(t, "ply\n", string(data))

	_, err = w.Write([]byte("more"))
	assert.ErrorIs(t, err, fs.ErrClosed)
	assert.ErrorIs(t, w.Close(), fs.ErrClosed)
}

func TestMemoryFileSystem_CreateNeedsParent(t *testing.T) {
	t.Parallel()
	m := NewMemoryFileSystem()

	_, err := m.Create("out/points.ply")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, m.MkdirAll("out/nested", 0o755))
	assert.True(t, m.Exists("out"))
	_, err = m.Create("out/points.ply")
	assert.NoError(t, err)
	_, err = m.Create("out/nested")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestMemoryFileSystem_OpenAndStat(t *testing.T) {
	t.Parallel()
	m := NewMemoryFileSystem()
	m.WriteFile("data/a.las", []byte("LASF"))

	f, err := m.Open("data/../data/a.las")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "LASF", string(data))

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, "a.las", info.Name())
	assert.Equal(t, int64(4), info.Size())

	info, err = m.Stat("data")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = m.Stat("nope")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	_, err = m.Open("nope")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	_, err = m.ReadFile("nope")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	assert.ErrorIs(t, m.MkdirAll("data/a.las", 0o755), fs.ErrExist)
}

func TestMemoryFileSystem_ReadFileIsolation(t *testing.T) {
	t.Parallel()
	m := NewMemoryFileSystem()
	src := []byte("abc")
	m.WriteFile("f", src)
	src[0] = 'x'

	got, err := m.ReadFile("f")
	require.NoError(t, err)
	got[1] = 'y'
	again, _ := m.ReadFile("f")
	assert.Equal(t, "abc", string(again))
}

func TestOSFileSystem(t *testing.T) {
	t.Parallel()
	var osfs OSFileSystem
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, osfs.MkdirAll(nested, 0o755))

	name := filepath.Join(nested, "x.csv")
	w, err := osfs.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte("x,y,z\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.True(t, osfs.Exists(name))
	data, err := osfs.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "x,y,z\n", string(data))

	f, err := osfs.Open(name)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := osfs.Stat(name)
	require.NoError(t, err)
	assert.Equal(t, int64(6), info.Size())

	_, err = osfs.Create(filepath.Join(dir, "missing", "x.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.False(t, osfs.Exists(filepath.Join(dir, "missing")))
}
