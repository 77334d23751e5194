// Package formats picks a point-cloud codec from a file's extension and runs
// it against a fsutil.FileSystem.
package formats

import (
	"path/filepath"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/formats/csvout"
	"github.com/banshee-data/lidarfeatures/internal/formats/las"
	"github.com/banshee-data/lidarfeatures/internal/formats/ply"
	"github.com/banshee-data/lidarfeatures/internal/fsutil"
	"github.com/banshee-data/lidarfeatures/internal/monitoring"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// Extensions handled by Load and Save.
const (
	LAS = "las"
	LAZ = "laz"
	PLY = "ply"
	CSV = "csv"
)

// LoadOptions tune Load.
type LoadOptions struct {
	// Attributes selects LAS dimensions; nil reads the defaults and
	// las.All reads everything. Ignored for PLY.
	Attributes []string
}

// SaveOptions tune Save.
type SaveOptions struct {
	// PLYFormat is the PLY body encoding; empty means binary little-endian.
	PLYFormat ply.Format
}

// Load reads the cloud at path.
func Load(fsys fsutil.FileSystem, path string, opts LoadOptions) (*pointcloud.PointCloud, error) {
	ext := fsutil.Ext(path)
	switch ext {
	case LAS, PLY:
	case LAZ:
		return nil, errs.New(errs.IOError, "%s: compressed LAZ input is not supported", path)
	default:
		return nil, errs.New(errs.InvalidInput, "%s: unsupported input format %q", path, ext)
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.IOError, "opening %s", path)
	}
	defer f.Close()

	var pc *pointcloud.PointCloud
	if ext == LAS {
		pc, err = las.Read(f, opts.Attributes)
	} else {
		pc, err = ply.Read(f)
	}
	if err != nil {
		return nil, errs.Wrap(err, "", "reading %s", path)
	}
	monitoring.Debugf("loaded %d points from %s", pc.Len(), path)
	return pc, nil
}

// Save writes pc to path, creating the parent directory when needed.
func Save(fsys fsutil.FileSystem, path string, pc *pointcloud.PointCloud, opts SaveOptions) (err error) {
	ext := fsutil.Ext(path)
	switch ext {
	case LAS, PLY, CSV:
	case LAZ:
		return errs.New(errs.IOError, "%s: compressed LAZ output is not supported", path)
	default:
		return errs.New(errs.InvalidInput, "%s: unsupported output format %q", path, ext)
	}
	if pc == nil {
		return errs.New(errs.InvalidInput, "cloud is required")
	}
	if dir := filepath.Dir(path); !fsys.Exists(dir) {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrap(err, errs.IOError, "creating directory for %s", path)
		}
	}
	w, err := fsys.Create(path)
	if err != nil {
		return errs.Wrap(err, errs.IOError, "creating %s", path)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = errs.Wrap(cerr, errs.IOError, "closing %s", path)
		}
	}()

	switch ext {
	case LAS:
		err = las.Write(w, pc)
	case PLY:
		format := opts.PLYFormat
		if format == "" {
			format = ply.BinaryLE
		}
		err = ply.Write(w, pc, format)
	case CSV:
		err = csvout.Write(w, pc)
	}
	if err != nil {
		return errs.Wrap(err, "", "writing %s", path)
	}
	monitoring.Debugf("wrote %d points to %s", pc.Len(), path)
	return nil
}
