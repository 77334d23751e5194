package las

import (
	"fmt"
	"math"

	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// Standard dimension names beyond the well-known pointcloud attributes.
const (
	ReturnNumber      = "return_number"
	NumberOfReturns   = "number_of_returns"
	ScanDirectionFlag = "scan_direction_flag"
	EdgeOfFlightLine  = "edge_of_flight_line"
	Classification    = "classification"
	Synthetic         = "synthetic"
	KeyPoint          = "key_point"
	Withheld          = "withheld"
	ScanAngleRank     = "scan_angle_rank"
	UserData          = "user_data"
	PointSourceID     = "point_source_id"
	Red               = "red"
	Green             = "green"
	Blue              = "blue"
)

// DefaultAttributes are read when the caller selects none.
var DefaultAttributes = []string{
	pointcloud.X, pointcloud.Y, pointcloud.Z,
	pointcloud.Intensity, pointcloud.GPSTime, pointcloud.RawClassification,
}

// All selects every standard and extra dimension.
const All = "all"

// recordLengths are the core record sizes of point formats 0 to 3.
var recordLengths = [4]int{20, 28, 26, 34}

// dim describes one standard dimension of formats 0 to 3.
type dim struct {
	name  string
	dtype pointcloud.DType
	// gps and rgb mark dimensions present only in formats with GPS time or
	// colour.
	gps, rgb bool
	get      func(rec []byte) float64
	put      func(rec []byte, v float64)
}

func bits(b byte, shift, width uint) float64 {
	return float64((b >> shift) & (1<<width - 1))
}

func setBits(dst *byte, v float64, shift, width uint) {
	mask := byte(1<<width-1) << shift
	*dst = *dst&^mask | (byte(clampUint(v, 1<<width-1))<<shift)&mask
}

func clampUint(v float64, hi uint64) uint64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= float64(hi) {
		return hi
	}
	return uint64(math.Round(v))
}

func clampInt(v float64, lo, hi int64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	r := math.Round(v)
	if r <= float64(lo) {
		return lo
	}
	if r >= float64(hi) {
		return hi
	}
	return int64(r)
}

// standardDims excludes x, y and z, which are scaled separately.
var standardDims = []dim{
	{name: pointcloud.Intensity, dtype: pointcloud.Uint16,
		get: func(r []byte) float64 { return float64(le.Uint16(r[12:])) },
		put: func(r []byte, v float64) { le.PutUint16(r[12:], uint16(clampUint(v, math.MaxUint16))) }},
	{name: ReturnNumber, dtype: pointcloud.Uint8,
		get: func(r []byte) float64 { return bits(r[14], 0, 3) },
		put: func(r []byte, v float64) { setBits(&r[14], v, 0, 3) }},
	{name: NumberOfReturns, dtype: pointcloud.Uint8,
		get: func(r []byte) float64 { return bits(r[14], 3, 3) },
		put: func(r []byte, v float64) { setBits(&r[14], v, 3, 3) }},
	{name: ScanDirectionFlag, dtype: pointcloud.Uint8,
		get: func(r []byte) float64 { return bits(r[14], 6, 1) },
		put: func(r []byte, v float64) { setBits(&r[14], v, 6, 1) }},
	{name: EdgeOfFlightLine, dtype: pointcloud.Uint8,
		get: func(r []byte) float64 { return bits(r[14], 7, 1) },
		put: func(r []byte, v float64) { setBits(&r[14], v, 7, 1) }},
	{name: pointcloud.RawClassification, dtype: pointcloud.Uint8,
		get: func(r []byte) float64 { return float64(r[15]) },
		put: func(r []byte, v float64) { r[15] = byte(clampUint(v, math.MaxUint8)) }},
	{name: Classification, dtype: pointcloud.Uint8,
		get: func(r []byte) float64 { return bits(r[15], 0, 5) },
		put: func(r []byte, v float64) { setBits(&r[15], v, 0, 5) }},
	{name: Synthetic, dtype: pointcloud.Uint8,
		get: func(r []byte) float64 { return bits(r[15], 5, 1) },
		put: func(r []byte, v float64) { setBits(&r[15], v, 5, 1) }},
	{name: KeyPoint, dtype: pointcloud.Uint8,
		get: func(r []byte) float64 { return bits(r[15], 6, 1) },
		put: func(r []byte, v float64) { setBits(&r[15], v, 6, 1) }},
	{name: Withheld, dtype: pointcloud.Uint8,
		get: func(r []byte) float64 { return bits(r[15], 7, 1) },
		put: func(r []byte, v float64) { setBits(&r[15], v, 7, 1) }},
	{name: ScanAngleRank, dtype: pointcloud.Int8,
		get: func(r []byte) float64 { return float64(int8(r[16])) },
		put: func(r []byte, v float64) { r[16] = byte(int8(clampInt(v, math.MinInt8, math.MaxInt8))) }},
	{name: UserData, dtype: pointcloud.Uint8,
		get: func(r []byte) float64 { return float64(r[17]) },
		put: func(r []byte, v float64) { r[17] = byte(clampUint(v, math.MaxUint8)) }},
	{name: PointSourceID, dtype: pointcloud.Uint16,
		get: func(r []byte) float64 { return float64(le.Uint16(r[18:])) },
		put: func(r []byte, v float64) { le.PutUint16(r[18:], uint16(clampUint(v, math.MaxUint16))) }},
	{name: pointcloud.GPSTime, dtype: pointcloud.Float64, gps: true,
		get: func(r []byte) float64 { return math.Float64frombits(le.Uint64(r[20:])) },
		put: func(r []byte, v float64) { le.PutUint64(r[20:], math.Float64bits(v)) }},
	{name: Red, dtype: pointcloud.Uint16, rgb: true},
	{name: Green, dtype: pointcloud.Uint16, rgb: true},
	{name: Blue, dtype: pointcloud.Uint16, rgb: true},
}

// dimsFor returns the standard dimensions of a point format with accessors
// bound to the format's layout.
func dimsFor(format uint8) []dim {
	gps := format == 1 || format == 3
	rgb := format == 2 || format == 3
	rgbOff := 20
	if gps {
		rgbOff = 28
	}
	var out []dim
	for _, d := range standardDims {
		switch {
		case d.gps && !gps, d.rgb && !rgb:
			continue
		case d.rgb:
			off := rgbOff
			switch d.name {
			case Green:
				off += 2
			case Blue:
				off += 4
			}
			d.get = func(r []byte) float64 { return float64(le.Uint16(r[off:])) }
			d.put = func(r []byte, v float64) { le.PutUint16(r[off:], uint16(clampUint(v, math.MaxUint16))) }
		}
		out = append(out, d)
	}
	return out
}

// Extra-bytes data types 1 to 10.
var extraTypes = map[uint8]pointcloud.DType{
	1: pointcloud.Uint8, 2: pointcloud.Int8,
	3: pointcloud.Uint16, 4: pointcloud.Int16,
	5: pointcloud.Uint32, 6: pointcloud.Int32,
	7: pointcloud.Uint64, 8: pointcloud.Int64,
	9: pointcloud.Float32, 10: pointcloud.Float64,
}

func extraTypeOf(d pointcloud.DType) uint8 {
	for code, t := range extraTypes {
		if t == d {
			return code
		}
	}
	return 10
}

const (
	extraDescriptorSize = 192
	extraUserID         = "LASF_Spec"
	extraRecordID       = 4
	optScale            = 1 << 3
	optOffset           = 1 << 4
)

// extraDim is one extra-bytes dimension.
type extraDim struct {
	name   string
	dtype  pointcloud.DType
	offset int // within the record
	scale  float64
	shift  float64
}

func parseExtraBytes(data []byte, start int) ([]extraDim, error) {
	if len(data)%extraDescriptorSize != 0 {
		return nil, fmt.Errorf("extra bytes record has %d bytes, not a multiple of %d", len(data), extraDescriptorSize)
	}
	var out []extraDim
	off := start
	for i := 0; i < len(data); i += extraDescriptorSize {
		d := data[i : i+extraDescriptorSize]
		code, opts := d[2], d[3]
		name := cstring(d[4:36])
		if code == 0 {
			// Undocumented bytes: options holds the byte count.
			off += int(opts)
			continue
		}
		dtype, ok := extraTypes[code]
		if !ok {
			return nil, fmt.Errorf("extra dimension %q: unsupported data type %d", name, code)
		}
		e := extraDim{name: name, dtype: dtype, offset: off, scale: 1}
		if opts&optScale != 0 {
			e.scale = math.Float64frombits(le.Uint64(d[112:]))
		}
		if opts&optOffset != 0 {
			e.shift = math.Float64frombits(le.Uint64(d[136:]))
		}
		out = append(out, e)
		off += dtype.Size()
	}
	return out, nil
}

func encodeExtraBytes(dims []extraDim) []byte {
	b := make([]byte, extraDescriptorSize*len(dims))
	for i, e := range dims {
		d := b[i*extraDescriptorSize:]
		d[2] = extraTypeOf(e.dtype)
		copy(d[4:36], e.name)
		copy(d[160:192], e.name)
	}
	return b
}

func (e extraDim) get(r []byte) float64 {
	b := r[e.offset:]
	var v float64
	switch e.dtype {
	case pointcloud.Uint8:
		v = float64(b[0])
	case pointcloud.Int8:
		v = float64(int8(b[0]))
	case pointcloud.Uint16:
		v = float64(le.Uint16(b))
	case pointcloud.Int16:
		v = float64(int16(le.Uint16(b)))
	case pointcloud.Uint32:
		v = float64(le.Uint32(b))
	case pointcloud.Int32:
		v = float64(int32(le.Uint32(b)))
	case pointcloud.Uint64:
		v = float64(le.Uint64(b))
	case pointcloud.Int64:
		v = float64(int64(le.Uint64(b)))
	case pointcloud.Float32:
		v = float64(math.Float32frombits(le.Uint32(b)))
	default:
		v = math.Float64frombits(le.Uint64(b))
	}
	return v*e.scale + e.shift
}

func (e extraDim) put(r []byte, v float64) {
	b := r[e.offset:]
	switch e.dtype {
	case pointcloud.Uint8:
		b[0] = byte(clampUint(v, math.MaxUint8))
	case pointcloud.Int8:
		b[0] = byte(int8(clampInt(v, math.MinInt8, math.MaxInt8)))
	case pointcloud.Uint16:
		le.PutUint16(b, uint16(clampUint(v, math.MaxUint16)))
	case pointcloud.Int16:
		le.PutUint16(b, uint16(int16(clampInt(v, math.MinInt16, math.MaxInt16))))
	case pointcloud.Uint32:
		le.PutUint32(b, uint32(clampUint(v, math.MaxUint32)))
	case pointcloud.Int32:
		le.PutUint32(b, uint32(int32(clampInt(v, math.MinInt32, math.MaxInt32))))
	case pointcloud.Uint64:
		le.PutUint64(b, clampUint(v, math.MaxUint64))
	case pointcloud.Int64:
		le.PutUint64(b, uint64(clampInt(v, math.MinInt64, math.MaxInt64)))
	case pointcloud.Float32:
		le.PutUint32(b, math.Float32bits(float32(v)))
	default:
		le.PutUint64(b, math.Float64bits(v))
	}
}
