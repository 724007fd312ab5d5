package bucket

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/geometry"
	"github.com/beetlebugorg/vtgeom/internal/segment"
	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/gpu"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

const (
	// extrudeScale maps a unit extrusion into a signed byte around 128.
	extrudeScale = 63

	sharpCornerOffset = 15
	degPerTriangle    = 20

	lineDistanceBufferBits = 15
	lineDistanceScale      = 1.0 / 2
	// maxLineDistance is the longest distance along a line the vertex data
	// can hold before it wraps back to zero.
	maxLineDistance = (1 << (lineDistanceBufferBits - 1)) / lineDistanceScale
)

// cosHalfSharpCorner is the cosine of half of 75 degrees. Corners sharper
// than that are cut back to keep the join from spiking.
var cosHalfSharpCorner = math.Cos(75.0 / 2 * (math.Pi / 180))

// Line joins and caps, including the internal join variants. A round cap
// shares the round join path.
const (
	joinMiter     = "miter"
	joinBevel     = "bevel"
	joinRound     = "round"
	joinFakeRound = "fakeround"
	joinFlipBevel = "flipbevel"
	capButt       = "butt"
	capSquare     = "square"
)

// LineBucket extrudes lines, and polygon outlines, into triangle strips
// with joins and caps.
type LineBucket struct {
	base
	LayoutVertexArray *array.LineLayoutArray
	IndexArray        *array.TriangleIndexArray
	Segments          *segment.Vector

	// per-line tessellation state
	distance float64
	e1, e2   int

	vertexBuffer gpu.VertexBuffer
	indexBuffer  gpu.IndexBuffer
}

// NewLine returns an empty line bucket.
func NewLine(p Parameters) *LineBucket {
	return &LineBucket{
		base:              newBase(style.Line, p),
		LayoutVertexArray: array.NewLineLayoutArray(),
		IndexArray:        array.NewTriangleIndexArray(),
		Segments:          segment.NewVector(),
	}
}

func (b *LineBucket) Populate(features []IndexedFeature, opts *Options) error {
	b.populatePatterns(opts)
	for _, f := range b.collect(features, "line-sort-key") {
		if b.hasPattern {
			b.addPatternDependencies(&f, opts)
			b.buffered = append(b.buffered, f)
		} else {
			b.addFeature(f, nil)
		}
		opts.insert(f.geometry, f.IndexedFeature, b.index, false)
	}
	if b.hasPattern {
		b.state = FeaturesBuffered
	} else {
		b.state = Finalized
	}
	return nil
}

// AddFeatures tessellates the features buffered while pattern images were
// unknown.
func (b *LineBucket) AddFeatures(opts *Options, images atlas.Positions) error {
	return b.addBuffered(func(f feature, images atlas.Positions) error {
		b.addFeature(f, images)
		return nil
	}, images)
}

func (b *LineBucket) addFeature(f feature, images atlas.Positions) {
	layout := b.layers[0]
	join := layout.String("line-join", f.Feature)
	lineCap := layout.String("line-cap", f.Feature)
	miterLimit := layout.Number("line-miter-limit", f.Feature)
	roundLimit := layout.Number("line-round-limit", f.Feature)

	isPolygon := f.Feature.Type() == vt.Polygon
	for _, line := range f.geometry {
		b.addLine(line, isPolygon, join, lineCap, miterLimit, roundLimit)
	}
	b.programs.PopulatePaintArrays(b.LayoutVertexArray.Len(), f.IndexedFeature, f.patterns, images)
}

func (b *LineBucket) addLine(ring geometry.Ring, isPolygon bool, join, lineCap string, miterLimit, roundLimit float64) {
	b.distance = 0

	vertices := make([]orb.Point, len(ring))
	for i, p := range ring {
		vertices[i] = orb.Point{float64(p.X), float64(p.Y)}
	}

	// Trim duplicate vertices at both ends.
	n := len(vertices)
	for n >= 2 && vertices[n-1] == vertices[n-2] {
		n--
	}
	first := 0
	for first < n-1 && vertices[first] == vertices[first+1] {
		first++
	}

	if n < 2 || (isPolygon && n < 3) {
		return
	}

	if join == joinBevel {
		miterLimit = 1.05
	}

	cornerOffset := 0.0
	if b.overscaling <= 16 {
		cornerOffset = sharpCornerOffset * geometry.Extent / (512 * float64(b.overscaling))
	}

	// Ten vertices per point is enough for any join.
	seg := b.Segments.Prepare(n*10, b.LayoutVertexArray, b.IndexArray)

	var (
		currentVertex, prevVertex, nextVertex *orb.Point
		prevNormal, nextNormal                *orb.Point
	)

	b.e1, b.e2 = -1, -1

	if isPolygon {
		cv := vertices[n-2]
		currentVertex = &cv
		nn := perp(unit(sub(vertices[first], cv)))
		nextNormal = &nn
	}

	for i := first; i < n; i++ {
		nextVertex = nil
		if i == n-1 {
			if isPolygon {
				nv := vertices[first+1]
				nextVertex = &nv
			}
		} else {
			nv := vertices[i+1]
			nextVertex = &nv
		}

		if nextVertex != nil && vertices[i] == *nextVertex {
			continue
		}

		if nextNormal != nil {
			prevNormal = nextNormal
		}
		if currentVertex != nil {
			prevVertex = currentVertex
		}

		cv := vertices[i]
		currentVertex = &cv

		// Without a next vertex the line continues straight.
		if nextVertex != nil {
			nn := perp(unit(sub(*nextVertex, *currentVertex)))
			nextNormal = &nn
		} else {
			nextNormal = prevNormal
		}
		if prevNormal == nil {
			prevNormal = nextNormal
		}

		// The join normal bisects the two segment normals. For a 180 degree
		// turn it stays zero and the miter length becomes infinite.
		joinNormal := add(*prevNormal, *nextNormal)
		if joinNormal[0] != 0 || joinNormal[1] != 0 {
			joinNormal = unit(joinNormal)
		}

		cosAngle := dot(*prevNormal, *nextNormal)
		cosHalfAngle := dot(joinNormal, *nextNormal)

		miterLength := math.Inf(1)
		if cosHalfAngle != 0 {
			miterLength = 1 / cosHalfAngle
		}

		approxAngle := 2 * math.Sqrt(2-2*cosHalfAngle)
		isSharpCorner := cosHalfAngle < cosHalfSharpCorner && prevVertex != nil && nextVertex != nil
		lineTurnsLeft := (*prevNormal)[0]*(*nextNormal)[1]-(*prevNormal)[1]*(*nextNormal)[0] > 0

		if isSharpCorner && i > first {
			prevSegmentLength := planar.Distance(*currentVertex, *prevVertex)
			if prevSegmentLength > 2*cornerOffset {
				np := sub(*currentVertex, round(mult(sub(*currentVertex, *prevVertex), cornerOffset/prevSegmentLength)))
				b.updateDistance(*prevVertex, np)
				b.addCurrentVertex(np, *prevNormal, 0, 0, seg, false)
				prevVertex = &np
			}
		}

		middleVertex := prevVertex != nil && nextVertex != nil
		currentJoin := lineCap
		switch {
		case middleVertex:
			currentJoin = join
		case isPolygon:
			currentJoin = capButt
		}

		if middleVertex && currentJoin == joinRound {
			if miterLength < roundLimit {
				currentJoin = joinMiter
			} else if miterLength <= 2 {
				currentJoin = joinFakeRound
			}
		}

		if currentJoin == joinMiter && miterLength > miterLimit {
			currentJoin = joinBevel
		}

		if currentJoin == joinBevel {
			// Extrusion is capped at twice the line width, so long bevels
			// flip to the other side.
			if miterLength > 2 {
				currentJoin = joinFlipBevel
			}
			// A bevel this small would not be visible.
			if miterLength < miterLimit {
				currentJoin = joinMiter
			}
		}

		if prevVertex != nil {
			b.updateDistance(*prevVertex, *currentVertex)
		}

		switch currentJoin {
		case joinMiter:
			b.addCurrentVertex(*currentVertex, mult(joinNormal, miterLength), 0, 0, seg, false)

		case joinFlipBevel:
			if miterLength > 100 {
				// almost parallel
				joinNormal = mult(*nextNormal, -1)
			} else {
				bevelLength := miterLength * mag(add(*prevNormal, *nextNormal)) / mag(sub(*prevNormal, *nextNormal))
				dir := 1.0
				if lineTurnsLeft {
					dir = -1
				}
				joinNormal = mult(perp(joinNormal), bevelLength*dir)
			}
			b.addCurrentVertex(*currentVertex, joinNormal, 0, 0, seg, false)
			b.addCurrentVertex(*currentVertex, mult(joinNormal, -1), 0, 0, seg, false)

		case joinBevel, joinFakeRound:
			offset := -math.Sqrt(miterLength*miterLength - 1)
			offsetA, offsetB := 0.0, offset
			if lineTurnsLeft {
				offsetA, offsetB = offset, 0
			}

			// Close the previous segment with a bevel.
			if prevVertex != nil {
				b.addCurrentVertex(*currentVertex, *prevNormal, offsetA, offsetB, seg, false)
			}

			if currentJoin == joinFakeRound {
				// Approximate a round join with pie slices, one per
				// degPerTriangle degrees of turn.
				pieces := int(math.Round((approxAngle * 180 / math.Pi) / degPerTriangle))
				for m := 1; m < pieces; m++ {
					t := float64(m) / float64(pieces)
					if t != 0.5 {
						// approximate spherical interpolation
						t2 := t - 0.5
						a := 1.0904 + cosAngle*(-3.2452+cosAngle*(3.55645-cosAngle*1.43519))
						bb := 0.848013 + cosAngle*(-1.06021+cosAngle*0.215638)
						t = t + t*t2*(t-1)*(a*t2*t2+bb)
					}
					extrude := unit(add(mult(sub(*nextNormal, *prevNormal), t), *prevNormal))
					if lineTurnsLeft {
						extrude = mult(extrude, -1)
					}
					b.addHalfVertex(*currentVertex, extrude[0], extrude[1], false, lineTurnsLeft, 0, seg)
				}
			}

			// Start the next segment.
			if nextVertex != nil {
				b.addCurrentVertex(*currentVertex, *nextNormal, -offsetA, -offsetB, seg, false)
			}

		case capButt:
			b.addCurrentVertex(*currentVertex, joinNormal, 0, 0, seg, false)

		case capSquare:
			offset := -1.0
			if prevVertex != nil {
				offset = 1
			}
			b.addCurrentVertex(*currentVertex, joinNormal, offset, offset, seg, false)

		case joinRound:
			if prevVertex != nil {
				// Close the previous segment with a butt, then the cap.
				b.addCurrentVertex(*currentVertex, *prevNormal, 0, 0, seg, false)
				b.addCurrentVertex(*currentVertex, *prevNormal, 1, 1, seg, true)
			}
			if nextVertex != nil {
				b.addCurrentVertex(*currentVertex, *nextNormal, -1, -1, seg, true)
				b.addCurrentVertex(*currentVertex, *nextNormal, 0, 0, seg, false)
			}
		}

		if isSharpCorner && i < n-1 {
			nextSegmentLength := planar.Distance(*currentVertex, *nextVertex)
			if nextSegmentLength > 2*cornerOffset {
				nc := add(*currentVertex, round(mult(sub(*nextVertex, *currentVertex), cornerOffset/nextSegmentLength)))
				b.updateDistance(*currentVertex, nc)
				b.addCurrentVertex(nc, *nextNormal, 0, 0, seg, false)
				currentVertex = &nc
			}
		}
	}
}

// addCurrentVertex adds the left and right vertices of a point. endLeft
// and endRight shift each extrusion along the line, for caps and bevels.
func (b *LineBucket) addCurrentVertex(p, normal orb.Point, endLeft, endRight float64, seg *segment.Segment, isRound bool) {
	leftX := normal[0] + normal[1]*endLeft
	leftY := normal[1] - normal[0]*endLeft
	rightX := -normal[0] + normal[1]*endRight
	rightY := -normal[1] - normal[0]*endRight

	b.addHalfVertex(p, leftX, leftY, isRound, false, endLeft, seg)
	b.addHalfVertex(p, rightX, rightY, isRound, true, -endRight, seg)

	// Restart the distance before it overflows the vertex data, repeating
	// the vertex at distance zero.
	if b.distance > maxLineDistance/2 {
		b.distance = 0
		b.addCurrentVertex(p, normal, endLeft, endRight, seg, isRound)
	}
}

func (b *LineBucket) addHalfVertex(p orb.Point, extrudeX, extrudeY float64, isRound, up bool, dir float64, seg *segment.Segment) {
	linesofar := int32(b.distance * lineDistanceScale)

	x := int16(p[0])<<1 | boolBit(isRound)
	y := int16(p[1])<<1 | boolBit(up)

	sign := 0
	if dir < 0 {
		sign = -1
	} else if dir > 0 {
		sign = 1
	}

	b.LayoutVertexArray.EmplaceBack(
		x, y,
		uint8(int(math.Round(extrudeScale*extrudeX))+128),
		uint8(int(math.Round(extrudeScale*extrudeY))+128),
		// direction in the low two bits, then the low six bits of the
		// distance; the high bits go in the last byte
		uint8((sign+1)|int(linesofar&0x3F)<<2),
		uint8(linesofar>>6),
	)

	e := seg.VertexLength
	seg.VertexLength++
	if b.e1 >= 0 && b.e2 >= 0 {
		b.IndexArray.EmplaceBack(b.e1, b.e2, e)
		seg.PrimitiveLength++
	}
	if up {
		b.e2 = e
	} else {
		b.e1 = e
	}
}

func (b *LineBucket) updateDistance(prev, next orb.Point) {
	b.distance += planar.Distance(prev, next)
}

func (b *LineBucket) IsEmpty() bool { return b.LayoutVertexArray.Len() == 0 }

func (b *LineBucket) Upload(ctx gpu.Context) {
	if !b.uploaded {
		b.vertexBuffer = ctx.CreateVertexBuffer(b.LayoutVertexArray.Bytes(), b.LayoutVertexArray.Layout(), false)
		b.indexBuffer = ctx.CreateIndexBuffer(b.IndexArray.Bytes(), false)
	}
	b.programs.Upload(ctx)
	b.uploaded = true
}

func (b *LineBucket) Destroy() {
	if b.vertexBuffer != nil {
		b.vertexBuffer.Destroy()
		b.indexBuffer.Destroy()
		b.vertexBuffer, b.indexBuffer = nil, nil
	}
	b.destroyPrograms()
}

func boolBit(v bool) int16 {
	if v {
		return 1
	}
	return 0
}

func sub(a, b orb.Point) orb.Point          { return orb.Point{a[0] - b[0], a[1] - b[1]} }
func add(a, b orb.Point) orb.Point          { return orb.Point{a[0] + b[0], a[1] + b[1]} }
func mult(a orb.Point, k float64) orb.Point { return orb.Point{a[0] * k, a[1] * k} }
func dot(a, b orb.Point) float64            { return a[0]*b[0] + a[1]*b[1] }
func perp(a orb.Point) orb.Point            { return orb.Point{-a[1], a[0]} }
func mag(a orb.Point) float64               { return math.Hypot(a[0], a[1]) }
func round(a orb.Point) orb.Point           { return orb.Point{math.Round(a[0]), math.Round(a[1])} }

func unit(a orb.Point) orb.Point {
	m := mag(a)
	if m == 0 {
		return a
	}
	return mult(a, 1/m)
}
