package bucket

import (
	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/geometry"
	"github.com/beetlebugorg/vtgeom/internal/segment"
	"github.com/beetlebugorg/vtgeom/pkg/gpu"
	"github.com/beetlebugorg/vtgeom/pkg/style"
)

// CircleBucket draws every in-tile point as a quad of four vertices and two
// triangles. Heatmap buckets use the same tessellation.
type CircleBucket struct {
	base
	LayoutVertexArray *array.CircleLayoutArray
	IndexArray        *array.TriangleIndexArray
	Segments          *segment.Vector

	vertexBuffer gpu.VertexBuffer
	indexBuffer  gpu.IndexBuffer
}

// NewCircle returns an empty circle bucket.
func NewCircle(p Parameters) *CircleBucket {
	return newCircleKind(style.Circle, p)
}

// NewHeatmap returns an empty heatmap bucket.
func NewHeatmap(p Parameters) *CircleBucket {
	return newCircleKind(style.Heatmap, p)
}

func newCircleKind(kind style.Type, p Parameters) *CircleBucket {
	return &CircleBucket{
		base:              newBase(kind, p),
		LayoutVertexArray: array.NewCircleLayoutArray(),
		IndexArray:        array.NewTriangleIndexArray(),
		Segments:          segment.NewVector(),
	}
}

func (b *CircleBucket) Populate(features []IndexedFeature, opts *Options) error {
	sortKey := ""
	if b.kind == style.Circle {
		sortKey = "circle-sort-key"
	}
	for _, f := range b.collect(features, sortKey) {
		b.addFeature(f)
		opts.insert(f.geometry, f.IndexedFeature, b.index, false)
	}
	b.state = Finalized
	return nil
}

func (b *CircleBucket) addFeature(f feature) {
	for _, ring := range f.geometry {
		for _, p := range ring {
			if !geometry.InTile(p) {
				continue
			}
			seg := b.Segments.PrepareSorted(4, b.LayoutVertexArray, b.IndexArray, f.sortKey)
			index := seg.VertexLength

			addCircleVertex(b.LayoutVertexArray, p, -1, -1)
			addCircleVertex(b.LayoutVertexArray, p, 1, -1)
			addCircleVertex(b.LayoutVertexArray, p, 1, 1)
			addCircleVertex(b.LayoutVertexArray, p, -1, 1)

			b.IndexArray.EmplaceBack(index, index+1, index+2)
			b.IndexArray.EmplaceBack(index, index+3, index+2)

			seg.VertexLength += 4
			seg.PrimitiveLength += 2
		}
	}
	b.programs.PopulatePaintArrays(b.LayoutVertexArray.Len(), f.IndexedFeature, nil, nil)
}

// addCircleVertex stores the doubled position with the corner direction in
// the low bit of each axis.
func addCircleVertex(a *array.CircleLayoutArray, p geometry.Point, extrudeX, extrudeY int) {
	a.EmplaceBack(int16(p.X*2+(extrudeX+1)/2), int16(p.Y*2+(extrudeY+1)/2))
}

func (b *CircleBucket) IsEmpty() bool { return b.LayoutVertexArray.Len() == 0 }

func (b *CircleBucket) Upload(ctx gpu.Context) {
	if !b.uploaded {
		b.vertexBuffer = ctx.CreateVertexBuffer(b.LayoutVertexArray.Bytes(), b.LayoutVertexArray.Layout(), false)
		b.indexBuffer = ctx.CreateIndexBuffer(b.IndexArray.Bytes(), false)
	}
	b.programs.Upload(ctx)
	b.uploaded = true
}

func (b *CircleBucket) Destroy() {
	if b.vertexBuffer != nil {
		b.vertexBuffer.Destroy()
		b.indexBuffer.Destroy()
		b.vertexBuffer, b.indexBuffer = nil, nil
	}
	b.destroyPrograms()
}
