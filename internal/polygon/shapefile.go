package polygon

import (
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/lidarfeatures/internal/errs"
)

// LoadShapefile reads every polygon record of an ESRI shapefile into one
// area. Shapefiles store outer rings clockwise and holes counter-clockwise;
// each hole is attached to the first outer ring that contains it.
func LoadShapefile(path string) (*Area, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.IOError, "opening shapefile %s", path)
	}
	defer r.Close()

	var mp orb.MultiPolygon
	for r.Next() {
		n, shape := r.Shape()
		var poly *shp.Polygon
		switch s := shape.(type) {
		case *shp.Polygon:
			poly = s
		case *shp.PolygonZ:
			poly = &shp.Polygon{Parts: s.Parts, Points: s.Points, NumParts: s.NumParts, NumPoints: s.NumPoints}
		default:
			return nil, errs.New(errs.InvalidInput, "%s record %d is not a polygon", path, n)
		}
		mp = append(mp, assemble(rings(poly))...)
	}
	if err := r.Err(); err != nil {
		return nil, errs.Wrap(err, errs.IOError, "reading shapefile %s", path)
	}
	if len(mp) == 0 {
		return nil, errs.New(errs.InvalidInput, "%s has no polygons", path)
	}
	return New(mp)
}

func rings(p *shp.Polygon) []orb.Ring {
	out := make([]orb.Ring, 0, len(p.Parts))
	for k, start := range p.Parts {
		end := len(p.Points)
		if k+1 < len(p.Parts) {
			end = int(p.Parts[k+1])
		}
		ring := make(orb.Ring, 0, end-int(start))
		for _, pt := range p.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		out = append(out, ring)
	}
	return out
}

func assemble(rs []orb.Ring) orb.MultiPolygon {
	var outers orb.MultiPolygon
	var holes []orb.Ring
	for _, r := range rs {
		if r.Orientation() == orb.CW {
			outers = append(outers, orb.Polygon{r})
		} else {
			holes = append(holes, r)
		}
	}
	if len(outers) == 0 {
		for _, h := range holes {
			outers = append(outers, orb.Polygon{h})
		}
		return outers
	}
	for _, h := range holes {
		placed := false
		for i, o := range outers {
			if len(h) > 0 && planar.RingContains(o[0], h[0]) {
				outers[i] = append(outers[i], h)
				placed = true
				break
			}
		}
		if !placed {
			outers = append(outers, orb.Polygon{h})
		}
	}
	return outers
}
