// Package volume describes the neighborhood shapes used both as search extent
// and as the denominator of density features.
package volume

import (
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/lidarfeatures/internal/errs"
)

// Type is the stable tag of a volume variant.
type Type string

const (
	SphereType           Type = "sphere"
	InfiniteCylinderType Type = "infinite cylinder"
	CellType             Type = "cell"
	CubeType             Type = "cube"
)

// Volume is a shape centred on a target point.
type Volume interface {
	Type() Type
	// Size is the radius for round shapes and the side for square ones.
	Size() float64
	AreaOrVolume() float64
	// XYRadius is the radius of the smallest vertical cylinder containing
	// the shape.
	XYRadius() float64
	// Contains reports membership of an offset from the target.
	Contains(dx, dy, dz float64) bool
}

// Sphere of radius R.
type Sphere struct{ R float64 }

func (s Sphere) Type() Type            { return SphereType }
func (s Sphere) Size() float64         { return s.R }
func (s Sphere) AreaOrVolume() float64 { return 4 * math.Pi * s.R * s.R * s.R / 3 }
func (s Sphere) XYRadius() float64     { return s.R }
func (s Sphere) Contains(dx, dy, dz float64) bool {
	return dx*dx+dy*dy+dz*dz <= s.R*s.R
}

// InfiniteCylinder is a vertical cylinder of radius R, unbounded in z.
type InfiniteCylinder struct{ R float64 }

func (c InfiniteCylinder) Type() Type            { return InfiniteCylinderType }
func (c InfiniteCylinder) Size() float64         { return c.R }
func (c InfiniteCylinder) AreaOrVolume() float64 { return math.Pi * c.R * c.R }
func (c InfiniteCylinder) XYRadius() float64     { return c.R }
func (c InfiniteCylinder) Contains(dx, dy, _ float64) bool {
	return dx*dx+dy*dy <= c.R*c.R
}

// Cell is a square XY column of side S, unbounded in z.
type Cell struct{ S float64 }

func (c Cell) Type() Type            { return CellType }
func (c Cell) Size() float64         { return c.S }
func (c Cell) AreaOrVolume() float64 { return c.S * c.S }
func (c Cell) XYRadius() float64     { return c.S * math.Sqrt2 / 2 }
func (c Cell) Contains(dx, dy, _ float64) bool {
	h := c.S / 2
	return math.Abs(dx) <= h && math.Abs(dy) <= h
}

// Cube of side S.
type Cube struct{ S float64 }

func (c Cube) Type() Type            { return CubeType }
func (c Cube) Size() float64         { return c.S }
func (c Cube) AreaOrVolume() float64 { return c.S * c.S * c.S }
func (c Cube) XYRadius() float64     { return c.S * math.Sqrt2 / 2 }
func (c Cube) Contains(dx, dy, dz float64) bool {
	h := c.S / 2
	return math.Abs(dx) <= h && math.Abs(dy) <= h && math.Abs(dz) <= h
}

// New constructs a volume from its tag. The size must be positive and finite.
func New(t Type, size float64) (Volume, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	switch t {
	case SphereType:
		return Sphere{R: size}, nil
	case InfiniteCylinderType:
		return InfiniteCylinder{R: size}, nil
	case CellType:
		return Cell{S: size}, nil
	case CubeType:
		return Cube{S: size}, nil
	}
	return nil, errs.New(errs.UnknownVolumeType, "unknown volume type %q", t)
}

// Validate checks a volume built directly from a struct literal.
func Validate(v Volume) error {
	if v == nil {
		return errs.New(errs.InvalidInput, "volume is nil")
	}
	switch v.(type) {
	case Sphere, InfiniteCylinder, Cell, Cube:
	default:
		return errs.New(errs.UnknownVolumeType, "unknown volume type %q", v.Type())
	}
	return checkSize(v.Size())
}

// Parse reads "type:size", e.g. "sphere:0.5" or "cylinder:2". The aliases
// "cylinder" and "infinite_cylinder" name the infinite cylinder.
func Parse(s string) (Volume, error) {
	name, sizeStr, ok := strings.Cut(s, ":")
	if !ok {
		return nil, errs.New(errs.InvalidInput, "volume %q: want type:size", s)
	}
	size, err := strconv.ParseFloat(strings.TrimSpace(sizeStr), 64)
	if err != nil {
		return nil, errs.Wrap(err, errs.InvalidInput, "volume %q: bad size", s)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "cylinder", "infinite_cylinder":
		name = string(InfiniteCylinderType)
	}
	return New(Type(name), size)
}

func checkSize(size float64) error {
	if !(size > 0) || math.IsInf(size, 1) {
		return errs.New(errs.InvalidInput, "volume size must be positive and finite, got %v", size)
	}
	return nil
}
