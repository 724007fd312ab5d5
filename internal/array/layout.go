// Package array provides byte-backed, growable arrays of fixed-layout
// structs. They hold vertex attributes and triangle/line indices exactly as
// they are uploaded to the GPU, so the backing bytes can be handed to a
// buffer, or across the worker boundary, without conversion.
package array

import "fmt"

// Type is the component type of a vertex attribute.
type Type uint8

const (
	Int8 Type = iota + 1
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float32
)

// Size returns the byte width of one component.
func (t Type) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case Int8:
		return "Int8"
	case Uint8:
		return "Uint8"
	case Int16:
		return "Int16"
	case Uint16:
		return "Uint16"
	case Int32:
		return "Int32"
	case Uint32:
		return "Uint32"
	case Float32:
		return "Float32"
	default:
		return "Unknown"
	}
}

// Attribute describes one named member of a struct layout.
type Attribute struct {
	Name       string
	Type       Type
	Components int
	Offset     int
}

// Layout is the memory layout of one array element.
type Layout struct {
	Name       string
	Attributes []Attribute
	Size       int
}

// NewLayout lays attributes out in order, each aligned to its component
// size, and pads the element to a multiple of alignment.
func NewLayout(name string, alignment int, attrs ...Attribute) *Layout {
	if alignment < 1 {
		alignment = 1
	}
	offset := 0
	maxAlign := 1
	out := make([]Attribute, len(attrs))
	for i, a := range attrs {
		size := a.Type.Size()
		if size == 0 || a.Components <= 0 {
			panic(fmt.Sprintf("array: invalid attribute %q in layout %q", a.Name, name))
		}
		offset = align(offset, size)
		a.Offset = offset
		out[i] = a
		offset += size * a.Components
		if size > maxAlign {
			maxAlign = size
		}
	}
	if alignment < maxAlign {
		alignment = maxAlign
	}
	return &Layout{Name: name, Attributes: out, Size: align(offset, alignment)}
}

// Attribute looks up an attribute by name.
func (l *Layout) Attribute(name string) (Attribute, bool) {
	for _, a := range l.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

func align(offset, size int) int {
	return (offset + size - 1) / size * size
}

// Vertex and index layouts.
var (
	PosLayout = NewLayout("pos", 4,
		Attribute{Name: "a_pos", Type: Int16, Components: 2})

	LineLayout = NewLayout("line", 4,
		Attribute{Name: "a_pos_normal", Type: Int16, Components: 2},
		Attribute{Name: "a_data", Type: Uint8, Components: 4})

	FillExtrusionLayout = NewLayout("fill_extrusion", 4,
		Attribute{Name: "a_pos", Type: Int16, Components: 2},
		Attribute{Name: "a_normal_ed", Type: Int16, Components: 4})

	TriangleLayout = NewLayout("triangle", 1,
		Attribute{Name: "vertices", Type: Uint16, Components: 3})

	LineIndexLayout = NewLayout("line_index", 1,
		Attribute{Name: "vertices", Type: Uint16, Components: 2})

	FeatureIndexLayout = NewLayout("feature_index", 4,
		Attribute{Name: "featureIndex", Type: Uint32, Components: 1},
		Attribute{Name: "sourceLayerIndex", Type: Uint16, Components: 1},
		Attribute{Name: "bucketIndex", Type: Uint16, Components: 1})

	CollisionBoxLayout = NewLayout("collision_box", 4,
		Attribute{Name: "anchor", Type: Int16, Components: 2},
		Attribute{Name: "box", Type: Int16, Components: 4},
		Attribute{Name: "featureIndex", Type: Uint32, Components: 1},
		Attribute{Name: "sourceLayerIndex", Type: Uint16, Components: 1},
		Attribute{Name: "bucketIndex", Type: Uint16, Components: 1})
)

// PaintLayout returns the layout of a paint attribute array with the given
// number of float components.
func PaintLayout(name string, components int) *Layout {
	return NewLayout(name, 4, Attribute{Name: name, Type: Float32, Components: components})
}
