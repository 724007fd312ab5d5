// Package segment partitions a bucket's vertex and index arrays into
// draw-call sized windows that stay addressable by 16-bit indices.
package segment

import (
	"fmt"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/logging"
)

// MaxVertexArrayLength is the largest number of vertices one segment may
// span.
const MaxVertexArrayLength = array.MaxIndex

// Array is anything that reports its element count.
type Array interface {
	Len() int
}

// Segment is a contiguous window of a bucket's arrays rendered with one
// draw call. Index values written for a segment are relative to
// VertexOffset.
type Segment struct {
	VertexOffset    int
	PrimitiveOffset int
	VertexLength    int
	PrimitiveLength int
	SortKey         *float64
}

func (s *Segment) String() string {
	return fmt.Sprintf("segment{v:%d+%d p:%d+%d}", s.VertexOffset, s.VertexLength, s.PrimitiveOffset, s.PrimitiveLength)
}

// Vector is an ordered sequence of segments.
type Vector struct {
	segments []*Segment
}

// NewVector returns an empty segment vector.
func NewVector() *Vector { return &Vector{} }

// Simple returns a vector holding exactly one segment.
func Simple(vertexOffset, primitiveOffset, vertexLength, primitiveLength int) *Vector {
	return &Vector{segments: []*Segment{{
		VertexOffset:    vertexOffset,
		PrimitiveOffset: primitiveOffset,
		VertexLength:    vertexLength,
		PrimitiveLength: primitiveLength,
	}}}
}

// Prepare returns the segment that the next numVertices vertices should be
// written into. A new segment anchored at the current array lengths is
// opened when there is none yet or when the open segment would grow past
// MaxVertexArrayLength. Callers bump VertexLength and PrimitiveLength after
// writing.
func (v *Vector) Prepare(numVertices int, vertices, indices Array) *Segment {
	return v.PrepareSorted(numVertices, vertices, indices, nil)
}

// PrepareSorted is Prepare for sort-keyed layers; a change of sort key also
// opens a new segment.
func (v *Vector) PrepareSorted(numVertices int, vertices, indices Array, sortKey *float64) *Segment {
	if numVertices > MaxVertexArrayLength {
		logging.WarnOnce(fmt.Sprintf("Max vertices per segment is %d: bucket requested %d", MaxVertexArrayLength, numVertices))
	}
	var seg *Segment
	if n := len(v.segments); n > 0 {
		seg = v.segments[n-1]
	}
	if seg == nil || seg.VertexLength+numVertices > MaxVertexArrayLength || !sameKey(seg.SortKey, sortKey) {
		seg = &Segment{
			VertexOffset:    vertices.Len(),
			PrimitiveOffset: indices.Len(),
		}
		if sortKey != nil {
			k := *sortKey
			seg.SortKey = &k
		}
		v.segments = append(v.segments, seg)
	}
	return seg
}

func sameKey(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Append adds a fully described segment, as when rebuilding a vector from
// a transferred payload.
func (v *Vector) Append(s Segment) {
	v.segments = append(v.segments, &s)
}

// Len returns the number of segments.
func (v *Vector) Len() int { return len(v.segments) }

// Segments returns the segments in draw order.
func (v *Vector) Segments() []*Segment { return v.segments }

// Get returns segment i.
func (v *Vector) Get(i int) *Segment { return v.segments[i] }

// VertexTotal sums VertexLength over all segments.
func (v *Vector) VertexTotal() int {
	n := 0
	for _, s := range v.segments {
		n += s.VertexLength
	}
	return n
}

// PrimitiveTotal sums PrimitiveLength over all segments.
func (v *Vector) PrimitiveTotal() int {
	n := 0
	for _, s := range v.segments {
		n += s.PrimitiveLength
	}
	return n
}

// Clear drops every segment.
func (v *Vector) Clear() { v.segments = nil }
