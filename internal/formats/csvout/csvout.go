// Package csvout exports a point cloud as comma-separated values: one header
// row of attribute names in x, y, z, then alphabetical order, then one row
// per point.
package csvout

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// Write encodes pc to w.
func Write(w io.Writer, pc *pointcloud.PointCloud) error {
	if pc == nil {
		return errs.New(errs.InvalidInput, "cloud is required")
	}
	names := pc.OrderedNames()
	attrs := pc.Attributes()
	cw := csv.NewWriter(w)
	if err := cw.Write(names); err != nil {
		return errs.Wrap(err, errs.IOError, "writing CSV header")
	}
	row := make([]string, len(names))
	for i := 0; i < pc.Len(); i++ {
		for k, name := range names {
			a := attrs[name]
			row[k] = Format(a.Type, a.Data[i])
		}
		if err := cw.Write(row); err != nil {
			return errs.Wrap(err, errs.IOError, "writing CSV row %d", i)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errs.Wrap(err, errs.IOError, "flushing CSV output")
	}
	return nil
}

// Format renders one value the way its column type stores it: floats with
// the shortest exact representation, integers without a fraction.
func Format(d pointcloud.DType, v float64) string {
	switch d {
	case pointcloud.Float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case pointcloud.Float32:
		return strconv.FormatFloat(v, 'g', -1, 32)
	}
	return strconv.FormatFloat(d.Cast(v), 'f', 0, 64)
}
