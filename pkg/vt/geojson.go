package vt

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

// GeoJSON converts a feature to a GeoJSON feature in WGS84, placing it in
// the given tile. Polygon rings are grouped into polygons by winding.
func GeoJSON(f Feature, tile maptile.Tile) *geojson.Feature {
	g := toOrb(f.Type(), f.LoadGeometry())
	out := geojson.NewFeature(g)
	for k, v := range f.Properties() {
		out.Properties[k] = v
	}
	if id, ok := f.ID(); ok {
		out.ID = id
	}
	if g == nil {
		return out
	}

	out.Geometry = project.Geometry(g, tileToWGS84(tile, f.Extent()))
	return out
}

// tileToWGS84 maps tile-local coordinates in [0, extent) to longitude and
// latitude. Coordinate x lands at (tile.X*extent + x) / (extent * 2^z).
func tileToWGS84(tile maptile.Tile, extent int) orb.Projection {
	size := float64(extent) * math.Exp2(float64(tile.Z))
	x0 := float64(tile.X) * float64(extent)
	y0 := float64(tile.Y) * float64(extent)
	return func(p orb.Point) orb.Point {
		lon := (x0+p[0])/size*360 - 180
		n := math.Pi * (1 - 2*(y0+p[1])/size)
		lat := math.Atan(math.Sinh(n)) * 180 / math.Pi
		return orb.Point{lon, lat}
	}
}

func toOrb(t GeomType, rings []Ring) orb.Geometry {
	switch t {
	case Point:
		var mp orb.MultiPoint
		for _, r := range rings {
			for _, c := range r {
				mp = append(mp, orbPoint(c))
			}
		}
		if len(mp) == 1 {
			return mp[0]
		}
		return mp
	case LineString:
		mls := make(orb.MultiLineString, 0, len(rings))
		for _, r := range rings {
			mls = append(mls, orbLine(r))
		}
		if len(mls) == 1 {
			return mls[0]
		}
		return mls
	case Polygon:
		polys := groupRings(rings)
		if len(polys) == 1 {
			return polys[0]
		}
		return polys
	default:
		return nil
	}
}

func orbPoint(c Coord) orb.Point { return orb.Point{float64(c.X), float64(c.Y)} }

func orbLine(r Ring) orb.LineString {
	ls := make(orb.LineString, len(r))
	for i, c := range r {
		ls[i] = orbPoint(c)
	}
	return ls
}

// groupRings starts a new polygon at every ring whose winding matches the
// first non-degenerate ring.
func groupRings(rings []Ring) orb.MultiPolygon {
	var (
		polys orb.MultiPolygon
		ccw   *bool
	)
	for _, r := range rings {
		area := ringArea(r)
		if area == 0 {
			continue
		}
		if ccw == nil {
			v := area < 0
			ccw = &v
		}
		ring := orb.Ring(orbLine(r))
		if (area < 0) == *ccw || len(polys) == 0 {
			polys = append(polys, orb.Polygon{ring})
		} else {
			polys[len(polys)-1] = append(polys[len(polys)-1], ring)
		}
	}
	return polys
}

func ringArea(r Ring) int {
	sum := 0
	for i, j := 0, len(r)-1; i < len(r); j, i = i, i+1 {
		sum += (r[j].X - r[i].X) * (r[i].Y + r[j].Y)
	}
	return sum
}
