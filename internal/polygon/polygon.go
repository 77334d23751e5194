// Package polygon selects points whose (x, y) lies strictly inside a polygon
// read from WKT text, a WKT file or an ESRI shapefile. Only Polygon and
// MultiPolygon geometries are accepted; points on any ring are outside.
package polygon

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/fsutil"
	"github.com/banshee-data/lidarfeatures/internal/monitoring"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// Module is the provenance module name written by Select.
const Module = "polygon_select"

// Area is a validated polygon or multipolygon.
type Area struct {
	polys orb.MultiPolygon
	bound orb.Bound
}

// New validates g and wraps it.
func New(g orb.Geometry) (*Area, error) {
	var mp orb.MultiPolygon
	switch v := g.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{v}
	case orb.MultiPolygon:
		mp = v
	case nil:
		return nil, errs.New(errs.InvalidInput, "geometry is required")
	default:
		return nil, errs.New(errs.InvalidInput, "geometry must be a Polygon or MultiPolygon, got %s", g.GeoJSONType())
	}
	if len(mp) == 0 {
		return nil, errs.New(errs.InvalidInput, "polygon is empty")
	}
	for i, p := range mp {
		if len(p) == 0 {
			return nil, errs.New(errs.InvalidInput, "polygon %d has no rings", i)
		}
		for j, r := range p {
			if err := validRing(r); err != nil {
				return nil, errs.Wrap(err, errs.InvalidInput, "polygon %d ring %d", i, j)
			}
		}
	}
	return &Area{polys: mp, bound: mp.Bound()}, nil
}

// ParseWKT parses WKT text.
func ParseWKT(s string) (*Area, error) {
	g, err := wkt.Unmarshal(strings.TrimSpace(s))
	if err != nil {
		return nil, errs.Wrap(err, errs.InvalidInput, "parsing WKT")
	}
	return New(g)
}

// LoadWKT reads WKT text from a file.
func LoadWKT(fsys fsutil.FileSystem, path string) (*Area, error) {
	b, err := fsys.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.IOError, "reading %s", path)
	}
	return ParseWKT(string(b))
}

// Load resolves source the way the CLI accepts it: a .shp path, an existing
// WKT file, or WKT text.
func Load(fsys fsutil.FileSystem, source string) (*Area, error) {
	switch {
	case fsutil.Ext(source) == "shp":
		return LoadShapefile(source)
	case fsys.Exists(source):
		return LoadWKT(fsys, source)
	}
	return ParseWKT(source)
}

// WKT renders the area back to text.
func (a *Area) WKT() string {
	if len(a.polys) == 1 {
		return wkt.MarshalString(a.polys[0])
	}
	return wkt.MarshalString(a.polys)
}

// Contains reports whether (x, y) is strictly inside the area.
func (a *Area) Contains(x, y float64) bool {
	pt := orb.Point{x, y}
	if !a.bound.Contains(pt) {
		return false
	}
	for _, p := range a.polys {
		if onBoundary(p, pt) {
			return false
		}
	}
	return planar.MultiPolygonContains(a.polys, pt)
}

// Mask returns one flag per point of pc.
func (a *Area) Mask(pc *pointcloud.PointCloud) ([]bool, error) {
	if pc == nil {
		return nil, errs.New(errs.InvalidInput, "cloud is required")
	}
	x, y, _ := pc.XYZ()
	mask := make([]bool, len(x))
	for i := range x {
		mask[i] = a.Contains(x[i], y[i])
	}
	return mask, nil
}

// Select returns the points of pc inside the area as a new cloud.
func (a *Area) Select(pc *pointcloud.PointCloud) (*pointcloud.PointCloud, error) {
	mask, err := a.Mask(pc)
	if err != nil {
		return nil, err
	}
	var idx []int
	for i, in := range mask {
		if in {
			idx = append(idx, i)
		}
	}
	out, err := pc.Subset(idx)
	if err != nil {
		return nil, err
	}
	out.AddProvenance(Module, a.WKT(), len(idx))
	monitoring.Debugf("polygon kept %d of %d points", len(idx), len(mask))
	return out, nil
}

func validRing(r orb.Ring) error {
	if len(r) < 4 {
		return errs.New(errs.InvalidInput, "ring needs at least 4 points, has %d", len(r))
	}
	if !r.Closed() {
		return errs.New(errs.InvalidInput, "ring is not closed")
	}
	if planar.Area(r) == 0 {
		return errs.New(errs.InvalidInput, "ring has zero area")
	}
	n := len(r) - 1
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(r[i], r[i+1], r[j], r[j+1]) {
				return errs.New(errs.InvalidInput, "ring self-intersects at edges %d and %d", i, j)
			}
		}
	}
	return nil
}

func onBoundary(p orb.Polygon, pt orb.Point) bool {
	for _, r := range p {
		for i := 0; i+1 < len(r); i++ {
			if onSegment(r[i], r[i+1], pt) {
				return true
			}
		}
	}
	return false
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func onSegment(a, b, p orb.Point) bool {
	if cross(a, b, p) != 0 {
		return false
	}
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}

func segmentsIntersect(a, b, c, d orb.Point) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return onSegment(c, d, a) || onSegment(c, d, b) || onSegment(a, b, c) || onSegment(a, b, d)
}
