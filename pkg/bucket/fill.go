package bucket

import (
	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/geometry"
	"github.com/beetlebugorg/vtgeom/internal/segment"
	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/gpu"
	"github.com/beetlebugorg/vtgeom/pkg/style"
)

// FillBucket holds a triangle mesh for the polygon interiors and a line
// mesh for their outlines, both indexing one vertex array.
type FillBucket struct {
	base
	LayoutVertexArray *array.PosArray
	IndexArray        *array.TriangleIndexArray
	IndexArray2       *array.LineIndexArray
	Segments          *segment.Vector
	Segments2         *segment.Vector

	maxRings     int
	vertexBuffer gpu.VertexBuffer
	indexBuffer  gpu.IndexBuffer
	indexBuffer2 gpu.IndexBuffer
}

// NewFill returns an empty fill bucket.
func NewFill(p Parameters) *FillBucket {
	return &FillBucket{
		base:              newBase(style.Fill, p),
		LayoutVertexArray: array.NewPosArray(),
		IndexArray:        array.NewTriangleIndexArray(),
		IndexArray2:       array.NewLineIndexArray(),
		Segments:          segment.NewVector(),
		Segments2:         segment.NewVector(),
		maxRings:          geometry.DefaultMaxRings,
	}
}

func (b *FillBucket) Populate(features []IndexedFeature, opts *Options) error {
	b.maxRings = opts.maxRings()
	b.populatePatterns(opts)
	for _, f := range b.collect(features, "fill-sort-key") {
		if b.hasPattern {
			b.addPatternDependencies(&f, opts)
			b.buffered = append(b.buffered, f)
		} else if err := b.addFeature(f, nil); err != nil {
			return err
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
func (b *FillBucket) AddFeatures(opts *Options, images atlas.Positions) error {
	return b.addBuffered(b.addFeature, images)
}

func (b *FillBucket) addFeature(f feature, images atlas.Positions) error {
	for _, polygon := range geometry.ClassifyRings(f.geometry) {
		indices, extra := geometry.Triangulate(polygon, b.maxRings)
		if len(indices)%3 != 0 {
			return &ErrTriangulation{Indices: len(indices)}
		}
		numVertices := len(extra)
		for _, ring := range polygon {
			numVertices += len(ring)
		}

		triangleSegment := b.Segments.Prepare(numVertices, b.LayoutVertexArray, b.IndexArray)
		triangleIndex := triangleSegment.VertexLength

		for _, ring := range polygon {
			if len(ring) == 0 {
				continue
			}

			lineSegment := b.Segments2.Prepare(len(ring), b.LayoutVertexArray, b.IndexArray2)
			lineIndex := lineSegment.VertexLength

			b.LayoutVertexArray.EmplaceBack(int16(ring[0].X), int16(ring[0].Y))
			b.IndexArray2.EmplaceBack(lineIndex+len(ring)-1, lineIndex)

			for i := 1; i < len(ring); i++ {
				b.LayoutVertexArray.EmplaceBack(int16(ring[i].X), int16(ring[i].Y))
				b.IndexArray2.EmplaceBack(lineIndex+i-1, lineIndex+i)
			}

			lineSegment.VertexLength += len(ring)
			lineSegment.PrimitiveLength += len(ring)
		}

		// Split polygons carry their pieces' vertices after the rings. The
		// outline segment spans them too so its indices stay aligned.
		if len(extra) > 0 {
			lineSegment := b.Segments2.Prepare(len(extra), b.LayoutVertexArray, b.IndexArray2)
			for _, p := range extra {
				b.LayoutVertexArray.EmplaceBack(int16(p.X), int16(p.Y))
			}
			lineSegment.VertexLength += len(extra)
		}

		for i := 0; i < len(indices); i += 3 {
			b.IndexArray.EmplaceBack(triangleIndex+indices[i], triangleIndex+indices[i+1], triangleIndex+indices[i+2])
		}

		triangleSegment.VertexLength += numVertices
		triangleSegment.PrimitiveLength += len(indices) / 3
	}
	b.programs.PopulatePaintArrays(b.LayoutVertexArray.Len(), f.IndexedFeature, f.patterns, images)
	return nil
}

func (b *FillBucket) IsEmpty() bool { return b.LayoutVertexArray.Len() == 0 }

func (b *FillBucket) Upload(ctx gpu.Context) {
	if !b.uploaded {
		b.vertexBuffer = ctx.CreateVertexBuffer(b.LayoutVertexArray.Bytes(), b.LayoutVertexArray.Layout(), false)
		b.indexBuffer = ctx.CreateIndexBuffer(b.IndexArray.Bytes(), false)
		b.indexBuffer2 = ctx.CreateIndexBuffer(b.IndexArray2.Bytes(), false)
	}
	b.programs.Upload(ctx)
	b.uploaded = true
}

func (b *FillBucket) Destroy() {
	if b.vertexBuffer != nil {
		b.vertexBuffer.Destroy()
		b.indexBuffer.Destroy()
		b.indexBuffer2.Destroy()
		b.vertexBuffer, b.indexBuffer, b.indexBuffer2 = nil, nil, nil
	}
	b.destroyPrograms()
}
