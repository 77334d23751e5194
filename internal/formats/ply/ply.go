// Package ply reads and writes point clouds as PLY in ASCII, binary
// little-endian and binary big-endian form. The cloud's provenance log is
// carried in framed header comments.
package ply

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// Format is the PLY body encoding.
type Format string

const (
	ASCII    Format = "ascii"
	BinaryLE Format = "binary_little_endian"
	BinaryBE Format = "binary_big_endian"
)

// ParseFormat accepts the header spelling and the short forms "le"/"be".
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "ascii":
		return ASCII, true
	case "binary_little_endian", "le", "binary":
		return BinaryLE, true
	case "binary_big_endian", "be":
		return BinaryBE, true
	}
	return "", false
}

// byteOrder reads and appends fixed-size integers.
type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func (f Format) order() byteOrder {
	if f == BinaryBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ElementName is the element written for points. Readers also accept
// "vertex".
const ElementName = "points"

var writeTypeNames = map[pointcloud.DType]string{
	pointcloud.Float64: "double",
	pointcloud.Float32: "float",
	pointcloud.Int64:   "int64",
	pointcloud.Int32:   "int",
	pointcloud.Int16:   "short",
	pointcloud.Int8:    "char",
	pointcloud.Uint64:  "uint64",
	pointcloud.Uint32:  "uint",
	pointcloud.Uint16:  "ushort",
	pointcloud.Uint8:   "uchar",
}

var readTypeNames = map[string]pointcloud.DType{
	"double": pointcloud.Float64, "float64": pointcloud.Float64,
	"float": pointcloud.Float32, "float32": pointcloud.Float32,
	"int64": pointcloud.Int64,
	"int": pointcloud.Int32, "int32": pointcloud.Int32,
	"short": pointcloud.Int16, "int16": pointcloud.Int16,
	"char": pointcloud.Int8, "int8": pointcloud.Int8,
	"uint64": pointcloud.Uint64,
	"uint": pointcloud.Uint32, "uint32": pointcloud.Uint32,
	"ushort": pointcloud.Uint16, "uint16": pointcloud.Uint16,
	"uchar": pointcloud.Uint8, "uint8": pointcloud.Uint8,
}

// encode appends v in dtype d.
func encode(dst []byte, order byteOrder, d pointcloud.DType, v float64) []byte {
	switch d {
	case pointcloud.Float64:
		return order.AppendUint64(dst, math.Float64bits(v))
	case pointcloud.Float32:
		return order.AppendUint32(dst, math.Float32bits(float32(v)))
	case pointcloud.Uint64:
		return order.AppendUint64(dst, toUint64(v))
	case pointcloud.Int64:
		return order.AppendUint64(dst, uint64(toInt64(v)))
	}
	c := int64(d.Cast(v))
	switch d.Size() {
	case 4:
		return order.AppendUint32(dst, uint32(c))
	case 2:
		return order.AppendUint16(dst, uint16(c))
	}
	return append(dst, byte(c))
}

// decode reads one dtype d value from the front of b.
func decode(b []byte, order byteOrder, d pointcloud.DType) float64 {
	switch d {
	case pointcloud.Float64:
		return math.Float64frombits(order.Uint64(b))
	case pointcloud.Float32:
		return float64(math.Float32frombits(order.Uint32(b)))
	case pointcloud.Int64:
		return float64(int64(order.Uint64(b)))
	case pointcloud.Uint64:
		return float64(order.Uint64(b))
	case pointcloud.Int32:
		return float64(int32(order.Uint32(b)))
	case pointcloud.Uint32:
		return float64(order.Uint32(b))
	case pointcloud.Int16:
		return float64(int16(order.Uint16(b)))
	case pointcloud.Uint16:
		return float64(order.Uint16(b))
	case pointcloud.Int8:
		return float64(int8(b[0]))
	}
	return float64(b[0])
}

func toUint64(v float64) uint64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint64:
		return math.MaxUint64
	}
	return uint64(math.Round(v))
}

func toInt64(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= math.MinInt64:
		return math.MinInt64
	case v >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(math.Round(v))
}

// formatText renders v for the ASCII body.
func formatText(d pointcloud.DType, v float64) string {
	switch d {
	case pointcloud.Float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case pointcloud.Float32:
		return strconv.FormatFloat(v, 'g', -1, 32)
	case pointcloud.Uint64:
		return strconv.FormatUint(toUint64(v), 10)
	case pointcloud.Int64:
		return strconv.FormatInt(toInt64(v), 10)
	}
	return strconv.FormatInt(int64(d.Cast(v)), 10)
}
