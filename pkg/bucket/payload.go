package bucket

import (
	"fmt"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/segment"
	"github.com/beetlebugorg/vtgeom/pkg/style"
)

// Array and segment names used in payloads.
const (
	ArrayLayoutVertex = "layoutVertex"
	ArrayIndex        = "index"
	ArrayIndex2       = "index2"
	SegmentsMain      = "segments"
	SegmentsOutline   = "segments2"
)

// Payload is the transferable content of a bucket: plain fields plus the
// raw struct arrays, with no references to style objects.
type Payload struct {
	Kind            style.Type
	Index           int
	LayerIDs        []string
	Zoom            float64
	OverscaleFactor int
	HasPattern      bool
	State           State
	Arrays          map[string]*array.StructArray
	Segments        map[string]*segment.Vector
	Programs        []*ProgramConfiguration
	Symbols         []SymbolInstance
}

// ArrayLayout returns the layout of a named array of a bucket kind.
func ArrayLayout(kind style.Type, name string) (*array.Layout, bool) {
	switch name {
	case ArrayIndex:
		switch kind {
		case style.Circle, style.Heatmap, style.Fill, style.Line, style.FillExtrusion:
			return array.TriangleLayout, true
		}
	case ArrayIndex2:
		if kind == style.Fill {
			return array.LineIndexLayout, true
		}
	case ArrayLayoutVertex:
		switch kind {
		case style.Circle, style.Heatmap, style.Fill:
			return array.PosLayout, true
		case style.Line:
			return array.LineLayout, true
		case style.FillExtrusion:
			return array.FillExtrusionLayout, true
		}
	}
	return nil, false
}

func (b *base) payload() *Payload {
	var programs []*ProgramConfiguration
	if b.programs != nil {
		programs = b.programs.Configurations()
	}
	return &Payload{
		Kind:            b.kind,
		Index:           b.index,
		LayerIDs:        b.layerIDs,
		Zoom:            b.zoom,
		OverscaleFactor: b.overscaling,
		HasPattern:      b.hasPattern,
		State:           b.state,
		Arrays:          make(map[string]*array.StructArray),
		Segments:        make(map[string]*segment.Vector),
		Programs:        programs,
	}
}

func (b *CircleBucket) Payload() *Payload {
	p := b.payload()
	p.Arrays[ArrayLayoutVertex] = &b.LayoutVertexArray.StructArray
	p.Arrays[ArrayIndex] = &b.IndexArray.StructArray
	p.Segments[SegmentsMain] = b.Segments
	return p
}

func (b *FillBucket) Payload() *Payload {
	p := b.payload()
	p.Arrays[ArrayLayoutVertex] = &b.LayoutVertexArray.StructArray
	p.Arrays[ArrayIndex] = &b.IndexArray.StructArray
	p.Arrays[ArrayIndex2] = &b.IndexArray2.StructArray
	p.Segments[SegmentsMain] = b.Segments
	p.Segments[SegmentsOutline] = b.Segments2
	return p
}

func (b *LineBucket) Payload() *Payload {
	p := b.payload()
	p.Arrays[ArrayLayoutVertex] = &b.LayoutVertexArray.StructArray
	p.Arrays[ArrayIndex] = &b.IndexArray.StructArray
	p.Segments[SegmentsMain] = b.Segments
	return p
}

func (b *FillExtrusionBucket) Payload() *Payload {
	p := b.payload()
	p.Arrays[ArrayLayoutVertex] = &b.LayoutVertexArray.StructArray
	p.Arrays[ArrayIndex] = &b.IndexArray.StructArray
	p.Segments[SegmentsMain] = b.Segments
	return p
}

func (b *SymbolBucket) Payload() *Payload {
	p := b.payload()
	p.Symbols = b.Instances
	return p
}

// FromPayload rebuilds a bucket, resolving its layers with lookup. Layers
// lookup does not know are dropped; if none remain the bucket is nil.
func FromPayload(p *Payload, lookup func(id string) *style.Evaluated) (Bucket, error) {
	var layers []*style.Evaluated
	for _, id := range p.LayerIDs {
		if l := lookup(id); l != nil {
			layers = append(layers, l)
		}
	}
	if len(layers) == 0 {
		return nil, nil
	}

	params := Parameters{Index: p.Index, Layers: layers, Zoom: p.Zoom, OverscaleFactor: p.OverscaleFactor}
	restore := func(b *base) {
		b.state = p.State
		b.hasPattern = p.HasPattern
		b.programs = RestoreProgramConfigurationSet(p.Kind, layers, p.Programs)
	}

	arr := func(name string) (*array.StructArray, error) {
		a, ok := p.Arrays[name]
		if !ok {
			return nil, fmt.Errorf("bucket %d (%s): missing array %q", p.Index, p.Kind, name)
		}
		return a, nil
	}
	segs := func(name string) *segment.Vector {
		if v, ok := p.Segments[name]; ok {
			return v
		}
		return segment.NewVector()
	}

	switch p.Kind {
	case style.Circle, style.Heatmap:
		vertices, err := arr(ArrayLayoutVertex)
		if err != nil {
			return nil, err
		}
		indices, err := arr(ArrayIndex)
		if err != nil {
			return nil, err
		}
		b := newCircleKind(p.Kind, params)
		restore(&b.base)
		b.LayoutVertexArray = array.WrapPos(vertices)
		b.IndexArray = array.WrapTriangles(indices)
		b.Segments = segs(SegmentsMain)
		return b, nil

	case style.Fill:
		vertices, err := arr(ArrayLayoutVertex)
		if err != nil {
			return nil, err
		}
		indices, err := arr(ArrayIndex)
		if err != nil {
			return nil, err
		}
		outline, err := arr(ArrayIndex2)
		if err != nil {
			return nil, err
		}
		b := NewFill(params)
		restore(&b.base)
		b.LayoutVertexArray = array.WrapPos(vertices)
		b.IndexArray = array.WrapTriangles(indices)
		b.IndexArray2 = array.WrapLineIndices(outline)
		b.Segments = segs(SegmentsMain)
		b.Segments2 = segs(SegmentsOutline)
		return b, nil

	case style.Line:
		vertices, err := arr(ArrayLayoutVertex)
		if err != nil {
			return nil, err
		}
		indices, err := arr(ArrayIndex)
		if err != nil {
			return nil, err
		}
		b := NewLine(params)
		restore(&b.base)
		b.LayoutVertexArray = array.WrapLine(vertices)
		b.IndexArray = array.WrapTriangles(indices)
		b.Segments = segs(SegmentsMain)
		return b, nil

	case style.FillExtrusion:
		vertices, err := arr(ArrayLayoutVertex)
		if err != nil {
			return nil, err
		}
		indices, err := arr(ArrayIndex)
		if err != nil {
			return nil, err
		}
		b := NewFillExtrusion(params)
		restore(&b.base)
		b.LayoutVertexArray = array.WrapFillExtrusion(vertices)
		b.IndexArray = array.WrapTriangles(indices)
		b.Segments = segs(SegmentsMain)
		return b, nil

	case style.Symbol:
		b := NewSymbol(params)
		restore(&b.base)
		b.Instances = p.Symbols
		return b, nil

	default:
		return nil, fmt.Errorf("bucket %d: unsupported kind %s", p.Index, p.Kind)
	}
}
