package las

import (
	"bufio"
	"io"
	"math"
	"slices"
	"time"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/version"
)

// DefaultScale is the coordinate resolution used when the cloud carries no
// LAS scale of its own.
const DefaultScale = 0.001

// classification sub-fields are not written when the full byte is present.
var classificationParts = []string{Classification, Synthetic, KeyPoint, Withheld}

// Write encodes pc as LAS 1.4. The point format is the one the cloud was
// read with, widened to carry GPS time or colour when the cloud has them,
// and format 1 for clouds that never came from LAS. Attributes that are not
// standard dimensions of that format are written as extra bytes with their
// own type.
func Write(w io.Writer, pc *pointcloud.PointCloud) error {
	if pc == nil {
		return errs.New(errs.InvalidInput, "cloud is required")
	}
	format := pointFormatFor(pc)
	std := dimsFor(format)

	stdNames := make(map[string]bool, len(std))
	for _, d := range std {
		stdNames[d.name] = true
	}
	hasRaw := pc.Has(pointcloud.RawClassification)
	var writeStd []dim
	var stdCols [][]float64
	for _, d := range std {
		if hasRaw && slices.Contains(classificationParts, d.name) {
			continue
		}
		col, err := pc.Column(d.name)
		if err != nil {
			continue
		}
		writeStd = append(writeStd, d)
		stdCols = append(stdCols, col)
	}

	core := recordLengths[format]
	var extras []extraDim
	var extraCols [][]float64
	off := core
	for _, name := range pc.Names() {
		if slices.Contains(axes[:], name) || stdNames[name] {
			continue
		}
		if len(name) > 32 {
			return errs.New(errs.InvalidInput, "attribute name %q longer than 32 bytes cannot be an extra dimension", name)
		}
		a, _ := pc.Attribute(name)
		e := extraDim{name: name, dtype: a.Type, offset: off, scale: 1}
		extras = append(extras, e)
		extraCols = append(extraCols, a.Data)
		off += a.Type.Size()
	}
	if off > math.MaxUint16 {
		return errs.New(errs.InvalidInput, "point record of %d bytes exceeds the LAS limit", off)
	}

	x, y, z := pc.XYZ()
	coords := [3][]float64{x, y, z}
	h := &Header{
		GlobalEncoding: 0,
		SystemID:       "OTHER",
		Software:       "lidarfeatures " + version.Version,
		PointFormat:    format,
		RecordLength:   uint16(off),
		NumPoints:      uint64(pc.Len()),
	}
	now := time.Now().UTC()
	h.CreationDay, h.CreationYear = uint16(now.YearDay()), uint16(now.Year())
	for a, axis := range axes {
		col := coords[a]
		lo, hi := math.Inf(1), math.Inf(-1)
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errs.New(errs.InvalidInput, "%s of point %d is not finite", axis, i)
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		if len(col) == 0 {
			lo, hi = 0, 0
		}
		h.Min[a], h.Max[a] = lo, hi
		h.Scale[a] = DefaultScale
		if s, ok := pc.Meta[MetaScalePrefix+axis]; ok && s > 0 {
			h.Scale[a] = s
		}
		h.Offset[a] = math.Floor(lo)
		if o, ok := pc.Meta[MetaOffsetPrefix+axis]; ok {
			h.Offset[a] = o
		}
		for _, v := range [2]float64{lo, hi} {
			q := math.Round((v - h.Offset[a]) / h.Scale[a])
			if q < math.MinInt32 || q > math.MaxInt32 {
				return errs.New(errs.InvalidInput, "%s range [%v, %v] does not fit scale %v and offset %v", axis, lo, hi, h.Scale[a], h.Offset[a])
			}
		}
	}
	if rn, err := pc.Column(ReturnNumber); err == nil {
		for _, v := range rn {
			if r := int(v); r >= 1 && r <= 15 {
				h.ReturnCounts[r-1]++
			}
		}
	}

	var vlrs []byte
	if len(extras) > 0 {
		vlrs = vlr{
			UserID:   extraUserID,
			RecordID: extraRecordID,
			Desc:     "extra bytes",
			Data:     encodeExtraBytes(extras),
		}.encode()
		h.NumVLRs = 1
	}
	h.PointOffset = uint32(headerSize14 + len(vlrs))

	bw := bufio.NewWriterSize(w, 1<<20)
	if _, err := bw.Write(h.encode()); err != nil {
		return errs.Wrap(err, errs.IOError, "writing LAS header")
	}
	if _, err := bw.Write(vlrs); err != nil {
		return errs.Wrap(err, errs.IOError, "writing LAS records")
	}
	rec := make([]byte, off)
	for i := 0; i < pc.Len(); i++ {
		clear(rec)
		for a := range axes {
			q := int32(math.Round((coords[a][i] - h.Offset[a]) / h.Scale[a]))
			le.PutUint32(rec[4*a:], uint32(q))
		}
		for k, d := range writeStd {
			d.put(rec, stdCols[k][i])
		}
		for k, e := range extras {
			e.put(rec, extraCols[k][i])
		}
		if _, err := bw.Write(rec); err != nil {
			return errs.Wrap(err, errs.IOError, "writing point %d", i)
		}
	}
	if err := bw.Flush(); err != nil {
		return errs.Wrap(err, errs.IOError, "flushing LAS output")
	}
	return nil
}

func pointFormatFor(pc *pointcloud.PointCloud) uint8 {
	format := uint8(1)
	if f, ok := pc.Meta[MetaPointFormat]; ok && f >= 0 && f <= 3 {
		format = uint8(f)
	}
	gps := format == 1 || format == 3 || pc.Has(pointcloud.GPSTime)
	rgb := format == 2 || format == 3 || pc.Has(Red) || pc.Has(Green) || pc.Has(Blue)
	switch {
	case gps && rgb:
		return 3
	case rgb:
		return 2
	case gps:
		return 1
	}
	return 0
}
