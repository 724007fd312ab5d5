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

// normalFactor scales unit normals into int16 range; the low bit of the x
// component marks top vertices.
const normalFactor = 1 << 13

// maxEdgeDistance is where the wall edge distance wraps back to zero.
const maxEdgeDistance = 32768

// FillExtrusionBucket builds walls along polygon edges and a triangulated
// roof.
type FillExtrusionBucket struct {
	base
	LayoutVertexArray *array.FillExtrusionLayoutArray
	IndexArray        *array.TriangleIndexArray
	Segments          *segment.Vector

	maxRings     int
	vertexBuffer gpu.VertexBuffer
	indexBuffer  gpu.IndexBuffer
}

// NewFillExtrusion returns an empty fill-extrusion bucket.
func NewFillExtrusion(p Parameters) *FillExtrusionBucket {
	return &FillExtrusionBucket{
		base:              newBase(style.FillExtrusion, p),
		LayoutVertexArray: array.NewFillExtrusionLayoutArray(),
		IndexArray:        array.NewTriangleIndexArray(),
		Segments:          segment.NewVector(),
		maxRings:          geometry.DefaultMaxRings,
	}
}

func (b *FillExtrusionBucket) Populate(features []IndexedFeature, opts *Options) error {
	b.maxRings = opts.maxRings()
	b.populatePatterns(opts)
	for _, f := range b.collect(features, "") {
		if b.hasPattern {
			b.addPatternDependencies(&f, opts)
			b.buffered = append(b.buffered, f)
		} else if err := b.addFeature(f, nil); err != nil {
			return err
		}
		opts.insert(f.geometry, f.IndexedFeature, b.index, true)
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
func (b *FillExtrusionBucket) AddFeatures(opts *Options, images atlas.Positions) error {
	return b.addBuffered(b.addFeature, images)
}

func (b *FillExtrusionBucket) addFeature(f feature, images atlas.Positions) error {
	for _, polygon := range geometry.ClassifyRings(f.geometry) {
		numVertices := 0
		for _, ring := range polygon {
			numVertices += len(ring)
		}
		seg := b.Segments.Prepare(4, b.LayoutVertexArray, b.IndexArray)

		for _, ring := range polygon {
			if len(ring) == 0 || isEntirelyOutside(ring) {
				continue
			}
			edgeDistance := 0.0
			for p := 1; p < len(ring); p++ {
				p1, p2 := ring[p], ring[p-1]
				if isBoundaryEdge(p1, p2) {
					continue
				}
				if seg.VertexLength+4 > segment.MaxVertexArrayLength {
					seg = b.Segments.Prepare(4, b.LayoutVertexArray, b.IndexArray)
				}

				o1 := orb.Point{float64(p1.X), float64(p1.Y)}
				o2 := orb.Point{float64(p2.X), float64(p2.Y)}
				normal := unit(perp(sub(o1, o2)))
				dist := planar.Distance(o2, o1)
				if edgeDistance+dist > maxEdgeDistance {
					edgeDistance = 0
				}

				addExtrusionVertex(b.LayoutVertexArray, p1, normal[0], normal[1], 0, 0, edgeDistance)
				addExtrusionVertex(b.LayoutVertexArray, p1, normal[0], normal[1], 0, 1, edgeDistance)
				edgeDistance += dist
				addExtrusionVertex(b.LayoutVertexArray, p2, normal[0], normal[1], 0, 0, edgeDistance)
				addExtrusionVertex(b.LayoutVertexArray, p2, normal[0], normal[1], 0, 1, edgeDistance)

				// 0 1
				// 2 3, wound counter-clockwise
				bottomRight := seg.VertexLength
				b.IndexArray.EmplaceBack(bottomRight, bottomRight+2, bottomRight+1)
				b.IndexArray.EmplaceBack(bottomRight+1, bottomRight+2, bottomRight+3)

				seg.VertexLength += 4
				seg.PrimitiveLength += 2
			}
		}

		// Only polygons have a roof.
		if f.Feature.Type() != vt.Polygon {
			continue
		}

		indices, extra := geometry.Triangulate(polygon, b.maxRings)
		if len(indices)%3 != 0 {
			return &ErrTriangulation{Indices: len(indices)}
		}
		numVertices += len(extra)

		if seg.VertexLength+numVertices > segment.MaxVertexArrayLength {
			seg = b.Segments.Prepare(numVertices, b.LayoutVertexArray, b.IndexArray)
		}
		triangleIndex := seg.VertexLength

		for _, ring := range polygon {
			for _, p := range ring {
				addExtrusionVertex(b.LayoutVertexArray, p, 0, 0, 1, 1, 0)
			}
		}
		for _, p := range extra {
			addExtrusionVertex(b.LayoutVertexArray, p, 0, 0, 1, 1, 0)
		}
		for j := 0; j < len(indices); j += 3 {
			b.IndexArray.EmplaceBack(triangleIndex+indices[j], triangleIndex+indices[j+2], triangleIndex+indices[j+1])
		}

		seg.PrimitiveLength += len(indices) / 3
		seg.VertexLength += numVertices
	}
	b.programs.PopulatePaintArrays(b.LayoutVertexArray.Len(), f.IndexedFeature, f.patterns, images)
	return nil
}

// addExtrusionVertex packs a position, a normal with the top flag t in its
// low x bit, and the distance along the wall.
func addExtrusionVertex(a *array.FillExtrusionLayoutArray, p geometry.Point, nx, ny, nz float64, t int, e float64) {
	a.EmplaceBack(
		int16(p.X),
		int16(p.Y),
		int16(int(math.Floor(nx*normalFactor))*2+t),
		int16(ny*normalFactor*2),
		int16(nz*normalFactor*2),
		int16(int(math.Round(e))),
	)
}

// isBoundaryEdge reports whether the edge runs along the tile border, where
// the neighboring tile continues the polygon.
func isBoundaryEdge(p1, p2 geometry.Point) bool {
	return (p1.X == p2.X && (p1.X < 0 || p1.X > geometry.Extent)) ||
		(p1.Y == p2.Y && (p1.Y < 0 || p1.Y > geometry.Extent))
}

func isEntirelyOutside(ring geometry.Ring) bool {
	return every(ring, func(p geometry.Point) bool { return p.X < 0 }) ||
		every(ring, func(p geometry.Point) bool { return p.X > geometry.Extent }) ||
		every(ring, func(p geometry.Point) bool { return p.Y < 0 }) ||
		every(ring, func(p geometry.Point) bool { return p.Y > geometry.Extent })
}

func every(ring geometry.Ring, pred func(geometry.Point) bool) bool {
	for _, p := range ring {
		if !pred(p) {
			return false
		}
	}
	return true
}

func (b *FillExtrusionBucket) IsEmpty() bool { return b.LayoutVertexArray.Len() == 0 }

func (b *FillExtrusionBucket) Upload(ctx gpu.Context) {
	if !b.uploaded {
		b.vertexBuffer = ctx.CreateVertexBuffer(b.LayoutVertexArray.Bytes(), b.LayoutVertexArray.Layout(), false)
		b.indexBuffer = ctx.CreateIndexBuffer(b.IndexArray.Bytes(), false)
	}
	b.programs.Upload(ctx)
	b.uploaded = true
}

func (b *FillExtrusionBucket) Destroy() {
	if b.vertexBuffer != nil {
		b.vertexBuffer.Destroy()
		b.indexBuffer.Destroy()
		b.vertexBuffer, b.indexBuffer = nil, nil
	}
	b.destroyPrograms()
}
