package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ToOrb converts integer rings to float rings for hit testing.
func ToOrb(rings []Ring) [][]orb.Point {
	out := make([][]orb.Point, len(rings))
	for i, r := range rings {
		out[i] = RingToOrb(r)
	}
	return out
}

// RingToOrb converts one integer ring.
func RingToOrb(r Ring) []orb.Point {
	pts := make([]orb.Point, len(r))
	for i, p := range r {
		pts[i] = orb.Point{float64(p.X), float64(p.Y)}
	}
	return pts
}

// PolygonIntersectsPolygon reports whether two rings overlap: either
// contains a vertex of the other, or their edges cross.
func PolygonIntersectsPolygon(a, b []orb.Point) bool {
	for _, p := range a {
		if PolygonContainsPoint(b, p) {
			return true
		}
	}
	for _, p := range b {
		if PolygonContainsPoint(a, p) {
			return true
		}
	}
	return lineIntersectsLine(a, b)
}

// PolygonIntersectsBufferedPoint reports whether the point, grown into a
// disc of the given radius, touches the polygon.
func PolygonIntersectsBufferedPoint(polygon []orb.Point, p orb.Point, radius float64) bool {
	if PolygonContainsPoint(polygon, p) {
		return true
	}
	return pointIntersectsBufferedLine(p, polygon, radius)
}

// PolygonIntersectsBufferedMultiPoint is PolygonIntersectsBufferedPoint over
// every point of every ring.
func PolygonIntersectsBufferedMultiPoint(polygon []orb.Point, rings [][]orb.Point, radius float64) bool {
	for _, ring := range rings {
		for _, p := range ring {
			if PolygonIntersectsBufferedPoint(polygon, p, radius) {
				return true
			}
		}
	}
	return false
}

// PolygonIntersectsMultiPolygon tests a query ring against the rings of a
// polygon feature, holes included.
func PolygonIntersectsMultiPolygon(polygon []orb.Point, multiPolygon [][]orb.Point) bool {
	if len(polygon) == 1 {
		return MultiPolygonContainsPoint(multiPolygon, polygon[0])
	}
	for _, ring := range multiPolygon {
		for _, p := range ring {
			if PolygonContainsPoint(polygon, p) {
				return true
			}
		}
	}
	for _, p := range polygon {
		if MultiPolygonContainsPoint(multiPolygon, p) {
			return true
		}
	}
	for _, ring := range multiPolygon {
		if lineIntersectsLine(polygon, ring) {
			return true
		}
	}
	return false
}

// PolygonIntersectsBufferedMultiLine tests a query ring against lines grown
// by radius.
func PolygonIntersectsBufferedMultiLine(polygon []orb.Point, multiLine [][]orb.Point, radius float64) bool {
	for _, line := range multiLine {
		if len(polygon) >= 3 {
			for _, p := range line {
				if PolygonContainsPoint(polygon, p) {
					return true
				}
			}
		}
		if LineIntersectsBufferedLine(polygon, line, radius) {
			return true
		}
	}
	return false
}

// LineIntersectsBufferedLine reports whether two lines come within radius
// of each other.
func LineIntersectsBufferedLine(a, b []orb.Point, radius float64) bool {
	if len(a) > 1 {
		if lineIntersectsLine(a, b) {
			return true
		}
		for _, p := range b {
			if pointIntersectsBufferedLine(p, a, radius) {
				return true
			}
		}
	}
	for _, p := range a {
		if pointIntersectsBufferedLine(p, b, radius) {
			return true
		}
	}
	return false
}

// PolygonIntersectsBox reports whether the ring touches the inclusive box.
func PolygonIntersectsBox(ring []orb.Point, box orb.Bound) bool {
	for _, p := range ring {
		if box.Contains(p) {
			return true
		}
	}
	corners := [4]orb.Point{
		box.Min,
		{box.Min[0], box.Max[1]},
		box.Max,
		{box.Max[0], box.Min[1]},
	}
	if len(ring) > 2 {
		for _, c := range corners {
			if PolygonContainsPoint(ring, c) {
				return true
			}
		}
	}
	for i := 0; i < len(ring)-1; i++ {
		if edgeIntersectsBox(ring[i], ring[i+1], corners) {
			return true
		}
	}
	return false
}

func edgeIntersectsBox(e1, e2 orb.Point, corners [4]orb.Point) bool {
	tl, br := corners[0], corners[2]
	if (e1[0] < tl[0] && e2[0] < tl[0]) ||
		(e1[0] > br[0] && e2[0] > br[0]) ||
		(e1[1] < tl[1] && e2[1] < tl[1]) ||
		(e1[1] > br[1] && e2[1] > br[1]) {
		return false
	}
	dir := isCounterClockwise(e1, e2, corners[0])
	return dir != isCounterClockwise(e1, e2, corners[1]) ||
		dir != isCounterClockwise(e1, e2, corners[2]) ||
		dir != isCounterClockwise(e1, e2, corners[3])
}

// MultiPolygonContainsPoint applies the even-odd rule across all rings, so
// points inside holes are outside.
func MultiPolygonContainsPoint(rings [][]orb.Point, p orb.Point) bool {
	c := false
	for _, ring := range rings {
		if crossings(ring, p) {
			c = !c
		}
	}
	return c
}

// PolygonContainsPoint applies the even-odd rule to one ring.
func PolygonContainsPoint(ring []orb.Point, p orb.Point) bool {
	return crossings(ring, p)
}

func crossings(ring []orb.Point, p orb.Point) bool {
	c := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		p1, p2 := ring[i], ring[j]
		if (p1[1] > p[1]) != (p2[1] > p[1]) &&
			p[0] < (p2[0]-p1[0])*(p[1]-p1[1])/(p2[1]-p1[1])+p1[0] {
			c = !c
		}
	}
	return c
}

func lineIntersectsLine(a, b []orb.Point) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for i := 0; i < len(a)-1; i++ {
		for j := 0; j < len(b)-1; j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(a0, a1, b0, b1 orb.Point) bool {
	return isCounterClockwise(a0, b0, b1) != isCounterClockwise(a1, b0, b1) &&
		isCounterClockwise(a0, a1, b0) != isCounterClockwise(a0, a1, b1)
}

func isCounterClockwise(a, b, c orb.Point) bool {
	return (c[1]-a[1])*(b[0]-a[0]) > (b[1]-a[1])*(c[0]-a[0])
}

func pointIntersectsBufferedLine(p orb.Point, line []orb.Point, radius float64) bool {
	r2 := radius * radius
	if len(line) == 1 {
		return planar.DistanceSquared(p, line[0]) < r2
	}
	for i := 1; i < len(line); i++ {
		if planar.DistanceFromSegmentSquared(line[i-1], line[i], p) < r2 {
			return true
		}
	}
	return false
}

// TranslateQuery offsets query geometry by a translation in pixels,
// converted to tile units.
func TranslateQuery(query []orb.Point, translate [2]float64, pixelsToTileUnits float64) []orb.Point {
	if translate[0] == 0 && translate[1] == 0 {
		return query
	}
	dx, dy := translate[0]*pixelsToTileUnits, translate[1]*pixelsToTileUnits
	out := make([]orb.Point, len(query))
	for i, p := range query {
		out[i] = orb.Point{p[0] - dx, p[1] - dy}
	}
	return out
}
