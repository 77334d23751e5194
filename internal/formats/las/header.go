// Package las reads and writes ASPRS LAS point-cloud files, versions 1.0 to
// 1.4, point data formats 0 to 3, including extra-bytes dimensions.
package las

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

var le = binary.LittleEndian

const (
	signature = "LASF"

	headerSize12 = 227
	headerSize13 = 235
	headerSize14 = 375

	vlrHeaderSize = 54

	// A set high bit in the point format marks LASzip compression.
	compressedBit = 0x80
)

// Header is the public header block. Only the fields the codec uses are
// kept.
type Header struct {
	FileSourceID   uint16
	GlobalEncoding uint16
	VersionMajor   uint8
	VersionMinor   uint8
	SystemID       string
	Software       string
	CreationDay    uint16
	CreationYear   uint16
	HeaderSize     uint16
	PointOffset    uint32
	NumVLRs        uint32
	PointFormat    uint8
	RecordLength   uint16
	NumPoints      uint64
	ReturnCounts   [15]uint64
	Scale          [3]float64
	Offset         [3]float64
	Max, Min       [3]float64
}

func parseHeader(b []byte) (*Header, error) {
	if len(b) < headerSize12 || string(b[:4]) != signature {
		return nil, fmt.Errorf("not a LAS file")
	}
	h := &Header{
		FileSourceID:   le.Uint16(b[4:]),
		GlobalEncoding: le.Uint16(b[6:]),
		VersionMajor:   b[24],
		VersionMinor:   b[25],
		SystemID:       cstring(b[26:58]),
		Software:       cstring(b[58:90]),
		CreationDay:    le.Uint16(b[90:]),
		CreationYear:   le.Uint16(b[92:]),
		HeaderSize:     le.Uint16(b[94:]),
		PointOffset:    le.Uint32(b[96:]),
		NumVLRs:        le.Uint32(b[100:]),
		PointFormat:    b[104],
		RecordLength:   le.Uint16(b[105:]),
		NumPoints:      uint64(le.Uint32(b[107:])),
	}
	for i := 0; i < 5; i++ {
		h.ReturnCounts[i] = uint64(le.Uint32(b[111+4*i:]))
	}
	for i := 0; i < 3; i++ {
		h.Scale[i] = math.Float64frombits(le.Uint64(b[131+8*i:]))
		h.Offset[i] = math.Float64frombits(le.Uint64(b[155+8*i:]))
		h.Max[i] = math.Float64frombits(le.Uint64(b[179+16*i:]))
		h.Min[i] = math.Float64frombits(le.Uint64(b[187+16*i:]))
	}
	if h.VersionMajor != 1 || h.VersionMinor > 4 {
		return nil, fmt.Errorf("unsupported LAS version %d.%d", h.VersionMajor, h.VersionMinor)
	}
	if h.VersionMinor >= 4 && len(b) >= headerSize14 {
		if n := le.Uint64(b[247:]); n != 0 {
			h.NumPoints = n
		}
		for i := 0; i < 15; i++ {
			h.ReturnCounts[i] = le.Uint64(b[255+8*i:])
		}
	}
	return h, nil
}

// encode renders a LAS 1.4 header.
func (h *Header) encode() []byte {
	b := make([]byte, headerSize14)
	copy(b, signature)
	le.PutUint16(b[4:], h.FileSourceID)
	le.PutUint16(b[6:], h.GlobalEncoding)
	b[24], b[25] = 1, 4
	copy(b[26:58], h.SystemID)
	copy(b[58:90], h.Software)
	le.PutUint16(b[90:], h.CreationDay)
	le.PutUint16(b[92:], h.CreationYear)
	le.PutUint16(b[94:], headerSize14)
	le.PutUint32(b[96:], h.PointOffset)
	le.PutUint32(b[100:], h.NumVLRs)
	b[104] = h.PointFormat
	le.PutUint16(b[105:], h.RecordLength)
	if h.NumPoints <= math.MaxUint32 {
		le.PutUint32(b[107:], uint32(h.NumPoints))
		for i := 0; i < 5; i++ {
			le.PutUint32(b[111+4*i:], uint32(h.ReturnCounts[i]))
		}
	}
	for i := 0; i < 3; i++ {
		le.PutUint64(b[131+8*i:], math.Float64bits(h.Scale[i]))
		le.PutUint64(b[155+8*i:], math.Float64bits(h.Offset[i]))
		le.PutUint64(b[179+16*i:], math.Float64bits(h.Max[i]))
		le.PutUint64(b[187+16*i:], math.Float64bits(h.Min[i]))
	}
	le.PutUint64(b[247:], h.NumPoints)
	for i := 0; i < 15; i++ {
		le.PutUint64(b[255+8*i:], h.ReturnCounts[i])
	}
	return b
}

// headerLength returns the number of header bytes to read for a version.
func headerLength(minor uint8) int {
	switch {
	case minor >= 4:
		return headerSize14
	case minor == 3:
		return headerSize13
	}
	return headerSize12
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// vlr is a variable length record.
type vlr struct {
	UserID   string
	RecordID uint16
	Desc     string
	Data     []byte
}

func (v vlr) encode() []byte {
	b := make([]byte, vlrHeaderSize+len(v.Data))
	copy(b[2:18], v.UserID)
	le.PutUint16(b[18:], v.RecordID)
	le.PutUint16(b[20:], uint16(len(v.Data)))
	copy(b[22:54], v.Desc)
	copy(b[vlrHeaderSize:], v.Data)
	return b
}
