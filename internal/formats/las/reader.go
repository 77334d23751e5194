package las

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/monitoring"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// maxPrealloc caps the column capacity reserved from the header count.
const maxPrealloc = 1 << 16

// Meta keys for the coordinate quantization kept on read and reused on
// write.
const (
	MetaPointFormat  = "las_point_format"
	MetaScalePrefix  = "las_scale_"
	MetaOffsetPrefix = "las_offset_"
)

var axes = [3]string{pointcloud.X, pointcloud.Y, pointcloud.Z}

// Read decodes a LAS stream. attrs selects the dimensions to keep: nil
// means DefaultAttributes, a single All keeps everything. x, y and z are
// always read. Requested dimensions the file lacks are skipped with a note.
func Read(r io.Reader, attrs []string) (*pointcloud.PointCloud, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	head := make([]byte, headerSize12)
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, errs.Wrap(err, errs.IOError, "reading LAS header")
	}
	if string(head[:4]) != signature {
		return nil, errs.New(errs.IOError, "not a LAS file")
	}
	if extra := headerLength(head[25]) - headerSize12; extra > 0 {
		rest := make([]byte, extra)
		if _, err := io.ReadFull(br, rest); err != nil {
			return nil, errs.Wrap(err, errs.IOError, "reading LAS header")
		}
		head = append(head, rest...)
	}
	h, err := parseHeader(head)
	if err != nil {
		return nil, errs.Wrap(err, errs.IOError, "parsing LAS header")
	}
	if h.PointFormat&compressedBit != 0 {
		return nil, errs.New(errs.IOError, "compressed LAZ data is not supported")
	}
	if h.PointFormat > 3 {
		return nil, errs.New(errs.IOError, "unsupported LAS point data format %d", h.PointFormat)
	}
	consumed := len(head)
	if int(h.HeaderSize) > consumed {
		if _, err := br.Discard(int(h.HeaderSize) - consumed); err != nil {
			return nil, errs.Wrap(err, errs.IOError, "skipping LAS header padding")
		}
		consumed = int(h.HeaderSize)
	}

	monitoring.Debugf("las: %s", h.Describe())
	core := recordLengths[h.PointFormat]
	var extras []extraDim
	for i := uint32(0); i < h.NumVLRs; i++ {
		vh := make([]byte, vlrHeaderSize)
		if _, err := io.ReadFull(br, vh); err != nil {
			return nil, errs.Wrap(err, errs.IOError, "reading VLR %d", i)
		}
		data := make([]byte, le.Uint16(vh[20:]))
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, errs.Wrap(err, errs.IOError, "reading VLR %d", i)
		}
		consumed += vlrHeaderSize + len(data)
		if cstring(vh[2:18]) == extraUserID && le.Uint16(vh[18:]) == extraRecordID {
			if extras, err = parseExtraBytes(data, core); err != nil {
				return nil, errs.Wrap(err, errs.IOError, "parsing extra bytes")
			}
		}
	}
	if gap := int(h.PointOffset) - consumed; gap > 0 {
		if _, err := br.Discard(gap); err != nil {
			return nil, errs.Wrap(err, errs.IOError, "seeking to LAS point data")
		}
	} else if gap < 0 {
		return nil, errs.New(errs.IOError, "LAS point data offset %d inside header records", h.PointOffset)
	}
	if int(h.RecordLength) < core {
		return nil, errs.New(errs.IOError, "record length %d too short for point format %d", h.RecordLength, h.PointFormat)
	}
	for _, e := range extras {
		if e.offset+e.dtype.Size() > int(h.RecordLength) {
			return nil, errs.New(errs.IOError, "extra dimension %q exceeds the point record", e.name)
		}
	}

	std, ext, err := selectDims(h.PointFormat, extras, attrs)
	if err != nil {
		return nil, err
	}

	if h.NumPoints > math.MaxInt {
		return nil, errs.New(errs.IOError, "LAS point count %d too large", h.NumPoints)
	}
	n := int(h.NumPoints)
	// Columns grow as records arrive; the header count only bounds the loop.
	c := min(n, maxPrealloc)
	coords := [3][]float64{make([]float64, 0, c), make([]float64, 0, c), make([]float64, 0, c)}
	stdCols := make([][]float64, len(std))
	for k := range stdCols {
		stdCols[k] = make([]float64, 0, c)
	}
	extCols := make([][]float64, len(ext))
	for k := range extCols {
		extCols[k] = make([]float64, 0, c)
	}
	rec := make([]byte, h.RecordLength)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, errs.Wrap(err, errs.IOError, "reading point %d of %d", i, n)
		}
		for a := 0; a < 3; a++ {
			coords[a] = append(coords[a], float64(int32(le.Uint32(rec[4*a:])))*h.Scale[a]+h.Offset[a])
		}
		for k, d := range std {
			stdCols[k] = append(stdCols[k], d.get(rec))
		}
		for k, e := range ext {
			extCols[k] = append(extCols[k], e.get(rec))
		}
	}

	pc, err := pointcloud.FromXYZ(coords[0], coords[1], coords[2])
	if err != nil {
		return nil, err
	}
	for k, d := range std {
		if err := pc.Add(d.name, d.dtype, stdCols[k]); err != nil {
			return nil, err
		}
	}
	for k, e := range ext {
		if err := pc.Add(e.name, e.dtype, extCols[k]); err != nil {
			return nil, err
		}
	}
	pc.Meta[MetaPointFormat] = float64(h.PointFormat)
	for a, axis := range axes {
		pc.Meta[MetaScalePrefix+axis] = h.Scale[a]
		pc.Meta[MetaOffsetPrefix+axis] = h.Offset[a]
	}
	return pc, nil
}

func selectDims(format uint8, extras []extraDim, attrs []string) ([]dim, []extraDim, error) {
	all := dimsFor(format)
	if len(attrs) == 1 && strings.EqualFold(attrs[0], All) {
		return all, extras, nil
	}
	if attrs == nil {
		attrs = DefaultAttributes
	}
	var (
		std     []dim
		ext     []extraDim
		missing []string
	)
	for _, name := range attrs {
		if slices.Contains(axes[:], name) {
			continue
		}
		if i := slices.IndexFunc(all, func(d dim) bool { return d.name == name }); i >= 0 {
			std = append(std, all[i])
			continue
		}
		if i := slices.IndexFunc(extras, func(e extraDim) bool { return e.name == name }); i >= 0 {
			ext = append(ext, extras[i])
			continue
		}
		if name == All {
			return nil, nil, errs.New(errs.InvalidInput, "%q cannot be combined with other attributes", All)
		}
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		monitoring.Logf("las: point format %d has no %s; skipped", format, strings.Join(missing, ", "))
	}
	return std, ext, nil
}

// Describe summarizes a header for logs.
func (h *Header) Describe() string {
	return fmt.Sprintf("LAS %d.%d format %d, %d points", h.VersionMajor, h.VersionMinor, h.PointFormat, h.NumPoints)
}
