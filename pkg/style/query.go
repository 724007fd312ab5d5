package style

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/vtgeom/internal/geometry"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

// PaintStats reports the largest value a data-driven paint property took
// among the features of a bucket.
type PaintStats interface {
	MaxValue(layerID, property string) (float64, bool)
}

// QueryRadius is how far, in pixels, rendered content of this layer can
// reach beyond its geometry. stats may be nil.
func (e *Evaluated) QueryRadius(stats PaintStats) float64 {
	switch e.Layer.Type {
	case Circle:
		return e.maxPaint("circle-radius", stats) + e.maxPaint("circle-stroke-width", stats) +
			translateDistance(e.Vec2("circle-translate"))
	case Heatmap:
		return e.maxPaint("heatmap-radius", stats)
	case Line:
		width := lineWidth(e.maxPaint("line-width", stats), e.maxPaint("line-gap-width", stats))
		offset := math.Abs(e.maxPaint("line-offset", stats))
		return width/2 + offset + translateDistance(e.Vec2("line-translate"))
	case Fill:
		return translateDistance(e.Vec2("fill-translate"))
	case FillExtrusion:
		return translateDistance(e.Vec2("fill-extrusion-translate"))
	default:
		return 0
	}
}

func (e *Evaluated) maxPaint(name string, stats PaintStats) float64 {
	if !e.IsDataDriven(name) {
		return e.Number(name, nil)
	}
	if stats != nil {
		if v, ok := stats.MaxValue(e.Layer.ID, name); ok {
			return v
		}
	}
	return 0
}

func translateDistance(t [2]float64) float64 {
	return math.Hypot(t[0], t[1])
}

func lineWidth(width, gap float64) float64 {
	if gap > 0 {
		return gap + 2*width
	}
	return width
}

// QueryIntersectsFeature tests whether the rendered feature touches the
// query polygon. query and geometry are in tile units.
func (e *Evaluated) QueryIntersectsFeature(query []orb.Point, f vt.Feature, state FeatureState, rings []geometry.Ring, pixelsToTileUnits float64) bool {
	geom := geometry.ToOrb(rings)
	switch e.Layer.Type {
	case Circle:
		q := geometry.TranslateQuery(query, e.Vec2("circle-translate"), pixelsToTileUnits)
		radius := e.NumberWithState("circle-radius", f, state) + e.NumberWithState("circle-stroke-width", f, state)
		return geometry.PolygonIntersectsBufferedMultiPoint(q, geom, radius*pixelsToTileUnits)
	case Heatmap:
		radius := e.NumberWithState("heatmap-radius", f, state)
		return geometry.PolygonIntersectsBufferedMultiPoint(query, geom, radius*pixelsToTileUnits)
	case Line:
		q := geometry.TranslateQuery(query, e.Vec2("line-translate"), pixelsToTileUnits)
		half := lineWidth(e.NumberWithState("line-width", f, state), e.NumberWithState("line-gap-width", f, state)) / 2 * pixelsToTileUnits
		if offset := e.NumberWithState("line-offset", f, state); offset != 0 {
			geom = offsetLines(geom, offset*pixelsToTileUnits)
		}
		return geometry.PolygonIntersectsBufferedMultiLine(q, geom, half)
	case Fill:
		q := geometry.TranslateQuery(query, e.Vec2("fill-translate"), pixelsToTileUnits)
		return geometry.PolygonIntersectsMultiPolygon(q, geom)
	case FillExtrusion:
		q := geometry.TranslateQuery(query, e.Vec2("fill-extrusion-translate"), pixelsToTileUnits)
		return geometry.PolygonIntersectsMultiPolygon(q, geom)
	default:
		return false
	}
}

// offsetLines shifts each line sideways by offset, mitering at vertices.
func offsetLines(rings [][]orb.Point, offset float64) [][]orb.Point {
	out := make([][]orb.Point, len(rings))
	for k, ring := range rings {
		shifted := make([]orb.Point, len(ring))
		for i, b := range ring {
			var aToB, bToC orb.Point
			if i > 0 {
				aToB = perp(unit(sub(b, ring[i-1])))
			}
			if i < len(ring)-1 {
				bToC = perp(unit(sub(ring[i+1], b)))
			}
			extrude := unit(orb.Point{aToB[0] + bToC[0], aToB[1] + bToC[1]})
			if cos := extrude[0]*bToC[0] + extrude[1]*bToC[1]; cos != 0 {
				extrude = orb.Point{extrude[0] / cos, extrude[1] / cos}
			}
			shifted[i] = orb.Point{b[0] + extrude[0]*offset, b[1] + extrude[1]*offset}
		}
		out[k] = shifted
	}
	return out
}

func sub(a, b orb.Point) orb.Point { return orb.Point{a[0] - b[0], a[1] - b[1]} }

func perp(p orb.Point) orb.Point { return orb.Point{-p[1], p[0]} }

func unit(p orb.Point) orb.Point {
	m := math.Hypot(p[0], p[1])
	if m == 0 {
		return p
	}
	return orb.Point{p[0] / m, p[1] / m}
}
