// Package pointcloud implements the columnar in-memory point cloud: aligned
// per-point attribute columns keyed by name, cloud-level metadata, and an
// append-only provenance log.
//
// Every attribute column has the same length as the cloud and x, y and z are
// always present. Coordinate columns are replaced wholesale through Add and
// never written element-wise, which keeps cached spatial indexes valid for
// the lifetime of the column they were built from.
package pointcloud

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/timeutil"
)

// Well-known attribute names.
const (
	X                 = "x"
	Y                 = "y"
	Z                 = "z"
	Intensity         = "intensity"
	GPSTime           = "gps_time"
	RawClassification = "raw_classification"
	NormalizedHeight  = "normalized_height"
)

// Attribute is one column: a type tag and a dense array of length Len().
type Attribute struct {
	Type DType
	Data []float64
}

var nextID atomic.Uint64

// PointCloud is a set of points with aligned attribute columns.
type PointCloud struct {
	id uint64

	mu     sync.RWMutex
	n      int
	points map[string]*Attribute

	// Meta holds cloud-level scalars such as LAS scales and offsets.
	Meta map[string]float64

	provenance []ProvenanceRecord
	clock      timeutil.Clock
}

// New returns an empty cloud with zero-length x, y and z columns.
func New() *PointCloud {
	pc := &PointCloud{
		id:     nextID.Add(1),
		points: make(map[string]*Attribute),
		Meta:   make(map[string]float64),
		clock:  timeutil.RealClock{},
	}
	for _, name := range []string{X, Y, Z} {
		pc.points[name] = &Attribute{Type: Float64, Data: []float64{}}
	}
	return pc
}

// FromXYZ builds a cloud from coordinate slices, which it takes ownership of.
func FromXYZ(x, y, z []float64) (*PointCloud, error) {
	if len(x) != len(y) || len(x) != len(z) {
		return nil, errs.New(errs.InvalidInput, "coordinate lengths differ: x=%d y=%d z=%d", len(x), len(y), len(z))
	}
	pc := New()
	pc.n = len(x)
	pc.points[X] = &Attribute{Type: Float64, Data: x}
	pc.points[Y] = &Attribute{Type: Float64, Data: y}
	pc.points[Z] = &Attribute{Type: Float64, Data: z}
	return pc, nil
}

// ID returns the process-unique identity of the cloud.
func (pc *PointCloud) ID() uint64 { return pc.id }

// Len returns the number of points.
func (pc *PointCloud) Len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.n
}

// SetClock replaces the clock used to stamp provenance records.
func (pc *PointCloud) SetClock(c timeutil.Clock) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.clock = c
}

// Has reports whether the attribute exists.
func (pc *PointCloud) Has(name string) bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	_, ok := pc.points[name]
	return ok
}

// Attribute returns the named column. The returned data must not be resized.
func (pc *PointCloud) Attribute(name string) (*Attribute, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	a, ok := pc.points[name]
	return a, ok
}

// Column returns the data of the named attribute or a MissingAttribute error.
func (pc *PointCloud) Column(name string) ([]float64, error) {
	a, ok := pc.Attribute(name)
	if !ok {
		return nil, errs.New(errs.MissingAttribute, "attribute %q not present", name)
	}
	return a.Data, nil
}

// XYZ returns the three coordinate columns.
func (pc *PointCloud) XYZ() (x, y, z []float64) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.points[X].Data, pc.points[Y].Data, pc.points[Z].Data
}

// Add inserts or replaces a whole column. Adding to a cloud that only has
// empty coordinates sets the cloud length.
func (pc *PointCloud) Add(name string, dtype DType, data []float64) error {
	if name == "" {
		return errs.New(errs.InvalidInput, "attribute name is empty")
	}
	if !dtype.Valid() {
		return errs.New(errs.InvalidInput, "attribute %q: unknown dtype %q", name, dtype)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if len(data) != pc.n {
		if pc.n != 0 {
			return errs.New(errs.InvalidInput, "attribute %q has length %d, cloud has %d points", name, len(data), pc.n)
		}
		pc.n = len(data)
		for k, a := range pc.points {
			if k != name {
				a.Data = make([]float64, pc.n)
			}
		}
	}
	pc.points[name] = &Attribute{Type: dtype, Data: data}
	return nil
}

// SetAt writes values at the given indices of the named column, creating it
// filled with NaN when absent. Other indices are left untouched. Coordinate
// columns cannot be written element-wise.
func (pc *PointCloud) SetAt(name string, dtype DType, indices []int, values []float64) error {
	if name == X || name == Y || name == Z {
		return errs.New(errs.InvalidInput, "coordinate %q cannot be written element-wise", name)
	}
	if len(indices) != len(values) {
		return errs.New(errs.InvalidInput, "attribute %q: %d indices for %d values", name, len(indices), len(values))
	}
	if !dtype.Valid() {
		return errs.New(errs.InvalidInput, "attribute %q: unknown dtype %q", name, dtype)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, i := range indices {
		if i < 0 || i >= pc.n {
			return errs.New(errs.InvalidInput, "attribute %q: index %d out of range [0,%d)", name, i, pc.n)
		}
	}
	a, ok := pc.points[name]
	if !ok {
		data := make([]float64, pc.n)
		for i := range data {
			data[i] = math.NaN()
		}
		a = &Attribute{Type: dtype, Data: data}
		pc.points[name] = a
	}
	for k, i := range indices {
		a.Data[i] = values[k]
	}
	return nil
}

// Drop removes an attribute. Coordinates cannot be dropped.
func (pc *PointCloud) Drop(name string) error {
	if name == X || name == Y || name == Z {
		return errs.New(errs.InvalidInput, "coordinate %q cannot be dropped", name)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.points, name)
	return nil
}

// Names returns all attribute names sorted alphabetically.
func (pc *PointCloud) Names() []string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	names := make([]string, 0, len(pc.points))
	for k := range pc.points {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// OrderedNames returns x, y, z followed by the remaining names alphabetically.
// This is the column order used by the file writers.
func (pc *PointCloud) OrderedNames() []string {
	out := []string{X, Y, Z}
	for _, k := range pc.Names() {
		if k != X && k != Y && k != Z {
			out = append(out, k)
		}
	}
	return out
}

// Attributes returns a deep copy of all columns, for comparisons in tests
// and for codecs that need a stable snapshot.
func (pc *PointCloud) Attributes() map[string]Attribute {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := make(map[string]Attribute, len(pc.points))
	for k, a := range pc.points {
		out[k] = Attribute{Type: a.Type, Data: append([]float64(nil), a.Data...)}
	}
	return out
}

// Subset returns a new cloud holding copies of the points at indices, in
// the given order. Metadata and provenance are copied.
func (pc *PointCloud) Subset(indices []int) (*PointCloud, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	for _, i := range indices {
		if i < 0 || i >= pc.n {
			return nil, errs.New(errs.InvalidInput, "subset index %d out of range [0,%d)", i, pc.n)
		}
	}
	out := pc.emptyCopy()
	out.n = len(indices)
	for k, a := range pc.points {
		data := make([]float64, len(indices))
		for j, i := range indices {
			data[j] = a.Data[i]
		}
		out.points[k] = &Attribute{Type: a.Type, Data: data}
	}
	return out, nil
}

// Copy returns a deep copy with a new identity.
func (pc *PointCloud) Copy() *PointCloud {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := pc.emptyCopy()
	out.n = pc.n
	for k, a := range pc.points {
		out.points[k] = &Attribute{Type: a.Type, Data: append([]float64(nil), a.Data...)}
	}
	return out
}

func (pc *PointCloud) emptyCopy() *PointCloud {
	out := New()
	for k, v := range pc.Meta {
		out.Meta[k] = v
	}
	out.provenance = append([]ProvenanceRecord(nil), pc.provenance...)
	out.clock = pc.clock
	return out
}
