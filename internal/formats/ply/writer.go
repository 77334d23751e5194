package ply

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// Write encodes pc with columns in x, y, z, then alphabetical order, and the
// provenance log as framed comments.
func Write(w io.Writer, pc *pointcloud.PointCloud, format Format) error {
	if pc == nil {
		return errs.New(errs.InvalidInput, "cloud is required")
	}
	f, ok := ParseFormat(string(format))
	if !ok {
		return errs.New(errs.InvalidInput, "unknown PLY format %q", format)
	}
	format = f
	names := pc.OrderedNames()
	attrs := pc.Attributes()
	for _, name := range names {
		if strings.ContainsAny(name, " \t\r\n") {
			return errs.New(errs.InvalidInput, "attribute %q cannot be a PLY property name", name)
		}
	}

	bw := bufio.NewWriterSize(w, 1<<20)
	var hdr strings.Builder
	hdr.WriteString("ply\n")
	fmt.Fprintf(&hdr, "format %s 1.0\n", format)
	if records := pc.Provenance(); len(records) > 0 {
		hdr.WriteString("comment " + logOpen + "\n")
		for _, r := range records {
			line, err := encodeRecord(r)
			if err != nil {
				return errs.Wrap(err, errs.InvalidInput, "writing PLY provenance")
			}
			hdr.WriteString("comment " + line + "\n")
		}
		hdr.WriteString("comment " + logClose + "\n")
	}
	fmt.Fprintf(&hdr, "element %s %d\n", ElementName, pc.Len())
	for _, name := range names {
		fmt.Fprintf(&hdr, "property %s %s\n", writeTypeNames[attrs[name].Type], name)
	}
	hdr.WriteString("end_header\n")
	if _, err := bw.WriteString(hdr.String()); err != nil {
		return errs.Wrap(err, errs.IOError, "writing PLY header")
	}

	cols := make([]pointcloud.Attribute, len(names))
	for k, name := range names {
		cols[k] = attrs[name]
	}
	var rec []byte
	order := format.order()
	for i := 0; i < pc.Len(); i++ {
		rec = rec[:0]
		for k, a := range cols {
			if format == ASCII {
				if k > 0 {
					rec = append(rec, ' ')
				}
				rec = append(rec, formatText(a.Type, a.Data[i])...)
			} else {
				rec = encode(rec, order, a.Type, a.Data[i])
			}
		}
		if format == ASCII {
			rec = append(rec, '\n')
		}
		if _, err := bw.Write(rec); err != nil {
			return errs.Wrap(err, errs.IOError, "writing PLY point %d", i)
		}
	}
	if err := bw.Flush(); err != nil {
		return errs.Wrap(err, errs.IOError, "flushing PLY output")
	}
	return nil
}
