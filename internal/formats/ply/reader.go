package ply

import (
	"bufio"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// maxPrealloc caps the column capacity reserved from a header count.
const maxPrealloc = 1 << 16

type property struct {
	name  string
	dtype pointcloud.DType
}

type element struct {
	name  string
	count int
	props []property
}

func (e *element) size() int {
	n := 0
	for _, p := range e.props {
		n += p.dtype.Size()
	}
	return n
}

type header struct {
	format     Format
	elements   []*element
	provenance []pointcloud.ProvenanceRecord
}

// Read decodes a PLY stream. Points come from the "points" or "vertex"
// element; other elements are skipped.
func Read(r io.Reader) (*pointcloud.PointCloud, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	var points *element
	var cols [][]float64
	for _, e := range h.elements {
		if points == nil && (e.name == ElementName || e.name == "vertex") {
			points = e
			if cols, err = readElement(br, h.format, e); err != nil {
				return nil, err
			}
			continue
		}
		if err := skipElement(br, h.format, e); err != nil {
			return nil, err
		}
	}
	if points == nil {
		return nil, errs.New(errs.IOError, "PLY file has no points element")
	}

	byName := make(map[string]int, len(points.props))
	for k, p := range points.props {
		if _, dup := byName[p.name]; dup {
			return nil, errs.New(errs.IOError, "duplicate PLY property %q", p.name)
		}
		byName[p.name] = k
	}
	var xyz [3][]float64
	for a, axis := range []string{pointcloud.X, pointcloud.Y, pointcloud.Z} {
		k, ok := byName[axis]
		if !ok {
			return nil, errs.New(errs.IOError, "PLY points element has no %s property", axis)
		}
		xyz[a] = cols[k]
	}
	pc, err := pointcloud.FromXYZ(xyz[0], xyz[1], xyz[2])
	if err != nil {
		return nil, err
	}
	// Coordinates are re-added so they keep their stored dtype.
	for k, p := range points.props {
		if err := pc.Add(p.name, p.dtype, cols[k]); err != nil {
			return nil, err
		}
	}
	pc.AppendProvenance(h.provenance...)
	return pc, nil
}

func readHeader(br *bufio.Reader) (*header, error) {
	h := &header{}
	line, err := readLine(br)
	if err != nil || line != "ply" {
		return nil, errs.New(errs.IOError, "not a PLY file")
	}
	inLog := false
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, errs.Wrap(err, errs.IOError, "reading PLY header")
		}
		keyword, rest, _ := strings.Cut(line, " ")
		switch keyword {
		case "format":
			fields := strings.Fields(rest)
			f, ok := Format(""), false
			if len(fields) == 2 && fields[1] == "1.0" {
				f, ok = ParseFormat(fields[0])
			}
			if !ok || string(f) != fields[0] {
				return nil, errs.New(errs.IOError, "unsupported PLY format line %q", line)
			}
			h.format = f
		case "comment":
			switch {
			case rest == logOpen:
				inLog = true
			case rest == logClose:
				inLog = false
			case inLog:
				rec, err := decodeRecord(rest)
				if err != nil {
					return nil, errs.Wrap(err, errs.IOError, "reading PLY provenance")
				}
				h.provenance = append(h.provenance, rec)
			}
		case "obj_info", "":
		case "element":
			fields := strings.Fields(rest)
			if len(fields) != 2 {
				return nil, errs.New(errs.IOError, "malformed PLY element line %q", line)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 0 {
				return nil, errs.New(errs.IOError, "bad PLY element count in %q", line)
			}
			h.elements = append(h.elements, &element{name: fields[0], count: n})
		case "property":
			if len(h.elements) == 0 {
				return nil, errs.New(errs.IOError, "PLY property before any element")
			}
			fields := strings.Fields(rest)
			if len(fields) > 0 && fields[0] == "list" {
				return nil, errs.New(errs.IOError, "PLY list properties are not supported")
			}
			if len(fields) != 2 {
				return nil, errs.New(errs.IOError, "malformed PLY property line %q", line)
			}
			dtype, ok := readTypeNames[fields[0]]
			if !ok {
				return nil, errs.New(errs.IOError, "unknown PLY property type %q", fields[0])
			}
			e := h.elements[len(h.elements)-1]
			e.props = append(e.props, property{name: fields[1], dtype: dtype})
		case "end_header":
			if h.format == "" {
				return nil, errs.New(errs.IOError, "PLY header has no format line")
			}
			return h, nil
		default:
			return nil, errs.New(errs.IOError, "unexpected PLY header line %q", line)
		}
	}
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readElement(br *bufio.Reader, format Format, e *element) ([][]float64, error) {
	if len(e.props) == 0 && e.count > 0 {
		return nil, errs.New(errs.IOError, "PLY element %s has no properties", e.name)
	}
	// Columns grow as rows arrive; the header count only bounds the loop.
	cols := make([][]float64, len(e.props))
	for k := range cols {
		cols[k] = make([]float64, 0, min(e.count, maxPrealloc))
	}
	if format == ASCII {
		for i := 0; i < e.count; i++ {
			line, err := readLine(br)
			if err != nil {
				return nil, errs.Wrap(err, errs.IOError, "reading PLY %s %d", e.name, i)
			}
			fields := strings.Fields(line)
			if len(fields) != len(e.props) {
				return nil, errs.New(errs.IOError, "PLY %s %d has %d values, want %d", e.name, i, len(fields), len(e.props))
			}
			for k, f := range fields {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, errs.Wrap(err, errs.IOError, "PLY %s %d property %s", e.name, i, e.props[k].name)
				}
				cols[k] = append(cols[k], e.props[k].dtype.Cast(v))
			}
		}
		return cols, nil
	}
	order := format.order()
	rec := make([]byte, e.size())
	for i := 0; i < e.count; i++ {
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, errs.Wrap(err, errs.IOError, "reading PLY %s %d", e.name, i)
		}
		off := 0
		for k, p := range e.props {
			cols[k] = append(cols[k], decode(rec[off:], order, p.dtype))
			off += p.dtype.Size()
		}
	}
	return cols, nil
}

func skipElement(br *bufio.Reader, format Format, e *element) error {
	if format == ASCII {
		for i := 0; i < e.count; i++ {
			if _, err := readLine(br); err != nil {
				return errs.Wrap(err, errs.IOError, "skipping PLY %s", e.name)
			}
		}
		return nil
	}
	if size := e.size(); size > 0 && e.count > math.MaxInt/size {
		return errs.New(errs.IOError, "PLY %s count %d too large", e.name, e.count)
	}
	if _, err := br.Discard(e.count * e.size()); err != nil {
		return errs.Wrap(err, errs.IOError, "skipping PLY %s", e.name)
	}
	return nil
}
