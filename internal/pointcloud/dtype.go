package pointcloud

import (
	"math"
)

// DType tags the storage type of an attribute column. Values are held as
// float64 in memory; the tag decides how codecs serialize them.
type DType string

const (
	Float64 DType = "float64"
	Float32 DType = "float32"
	Int64   DType = "int64"
	Int32   DType = "int32"
	Int16   DType = "int16"
	Int8    DType = "int8"
	Uint64  DType = "uint64"
	Uint32  DType = "uint32"
	Uint16  DType = "uint16"
	Uint8   DType = "uint8"
)

var dtypeSizes = map[DType]int{
	Float64: 8, Float32: 4,
	Int64: 8, Int32: 4, Int16: 2, Int8: 1,
	Uint64: 8, Uint32: 4, Uint16: 2, Uint8: 1,
}

// Valid reports whether d is a known type tag.
func (d DType) Valid() bool {
	_, ok := dtypeSizes[d]
	return ok
}

// Size returns the serialized width in bytes, or 0 for an unknown tag.
func (d DType) Size() int { return dtypeSizes[d] }

// IsFloat reports whether d is a floating point type.
func (d DType) IsFloat() bool { return d == Float64 || d == Float32 }

// IsSigned reports whether d is a signed integer type.
func (d DType) IsSigned() bool {
	return d == Int64 || d == Int32 || d == Int16 || d == Int8
}

// Bounds returns the representable range of an integer type.
func (d DType) Bounds() (lo, hi float64) {
	switch d {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Int64:
		return math.MinInt64, math.MaxInt64
	case Uint8:
		return 0, math.MaxUint8
	case Uint16:
		return 0, math.MaxUint16
	case Uint32:
		return 0, math.MaxUint32
	case Uint64:
		return 0, math.MaxUint64
	}
	return math.Inf(-1), math.Inf(1)
}

// Cast converts v to the nearest value representable in d. Integer types
// round half away from zero and clamp; NaN becomes 0.
func (d DType) Cast(v float64) float64 {
	switch {
	case d == Float64:
		return v
	case d == Float32:
		return float64(float32(v))
	case math.IsNaN(v):
		return 0
	}
	lo, hi := d.Bounds()
	r := math.Round(v)
	if r < lo {
		return lo
	}
	if r > hi {
		return hi
	}
	return r
}
