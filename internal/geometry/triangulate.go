package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
)

// DefaultMaxRings caps the rings handed to one triangulation call.
const DefaultMaxRings = 500

const maxSplitDepth = 16

// Triangulate triangulates one polygon, outer ring first. The returned
// indices address the polygon's points in ring order followed by extra.
//
// A polygon with more than maxRings rings is cut into pieces of at most
// maxRings rings and each piece is triangulated on its own. The pieces'
// points come back in extra; the polygon's own points are then unused by
// the triangles. maxRings <= 1 disables the cap.
func Triangulate(polygon []Ring, maxRings int) (indices []int, extra []Point) {
	if maxRings <= 1 || len(polygon) <= maxRings {
		data, holes := flatten(polygon)
		return Earcut(data, holes, 2), nil
	}

	base := 0
	for _, ring := range polygon {
		base += len(ring)
	}
	for _, piece := range SplitPolygon(polygon, maxRings) {
		data, holes := flatten(piece)
		offset := base + len(extra)
		for _, i := range Earcut(data, holes, 2) {
			indices = append(indices, offset+i)
		}
		for _, ring := range piece {
			extra = append(extra, ring...)
		}
	}
	return indices, extra
}

// SplitPolygon cuts a polygon into pieces of at most maxRings rings. Each
// cut halves the outer ring's bounds across the longer axis, between the
// two median hole centers. Holes crossing a cut are clipped into both
// pieces and cut points are rounded to tile units. A polygon whose holes
// cannot be separated is returned whole.
func SplitPolygon(polygon []Ring, maxRings int) [][]Ring {
	if maxRings <= 1 || len(polygon) <= maxRings {
		return [][]Ring{polygon}
	}
	p := make(orb.Polygon, len(polygon))
	for i, ring := range polygon {
		p[i] = make(orb.Ring, len(ring))
		for j, pt := range ring {
			p[i][j] = orb.Point{float64(pt.X), float64(pt.Y)}
		}
	}
	return splitPolygon(p, maxRings, 0)
}

func splitPolygon(p orb.Polygon, maxRings, depth int) [][]Ring {
	if len(p) <= maxRings || depth >= maxSplitDepth {
		return [][]Ring{fromOrb(p)}
	}

	var pieces []orb.Polygon
	progress := false
	for _, b := range cutBounds(p) {
		piece := clip.Polygon(b, p.Clone())
		if len(piece) == 0 {
			continue
		}
		if len(piece) < len(p) {
			progress = true
		}
		pieces = append(pieces, piece)
	}
	if !progress {
		return [][]Ring{fromOrb(p)}
	}

	var out [][]Ring
	for _, piece := range pieces {
		out = append(out, splitPolygon(piece, maxRings, depth+1)...)
	}
	return out
}

// cutBounds splits the outer ring's bounds in two.
func cutBounds(p orb.Polygon) [2]orb.Bound {
	b := p[0].Bound()
	axis := 0
	if b.Max[1]-b.Min[1] > b.Max[0]-b.Min[0] {
		axis = 1
	}

	centers := make([]float64, 0, len(p)-1)
	for _, hole := range p[1:] {
		centers = append(centers, hole.Bound().Center()[axis])
	}
	sort.Float64s(centers)
	m := len(centers) / 2
	cut := math.Round((centers[m-1] + centers[m]) / 2)
	if cut <= b.Min[axis] || cut >= b.Max[axis] {
		cut = math.Round((b.Min[axis] + b.Max[axis]) / 2)
	}

	lo, hi := b, b
	lo.Max[axis] = cut
	hi.Min[axis] = cut
	return [2]orb.Bound{lo, hi}
}

func fromOrb(p orb.Polygon) []Ring {
	out := make([]Ring, 0, len(p))
	for _, r := range p {
		ring := make(Ring, len(r))
		for i, pt := range r {
			ring[i] = Point{X: int(math.Round(pt[0])), Y: int(math.Round(pt[1]))}
		}
		out = append(out, ring)
	}
	return out
}
