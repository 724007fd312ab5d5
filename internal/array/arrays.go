package array

// PosArray holds int16 x/y positions (fill, circle and heatmap layouts).
type PosArray struct{ StructArray }

func NewPosArray() *PosArray { return &PosArray{newStructArray(PosLayout)} }

// EmplaceBack appends a vertex and returns its index.
func (a *PosArray) EmplaceBack(x, y int16) int {
	off := a.emplace()
	a.putInt16(off, x)
	a.putInt16(off+2, y)
	return a.length - 1
}

// At returns the position of vertex i.
func (a *PosArray) At(i int) (x, y int16) {
	off := a.offset(i)
	return a.int16At(off), a.int16At(off + 2)
}

// LineLayoutArray holds line vertices: a packed position/normal pair and four
// bytes of extrusion and line-distance data.
type LineLayoutArray struct{ StructArray }

func NewLineLayoutArray() *LineLayoutArray { return &LineLayoutArray{newStructArray(LineLayout)} }

func (a *LineLayoutArray) EmplaceBack(x, y int16, d0, d1, d2, d3 uint8) int {
	off := a.emplace()
	a.putInt16(off, x)
	a.putInt16(off+2, y)
	a.data[off+4] = d0
	a.data[off+5] = d1
	a.data[off+6] = d2
	a.data[off+7] = d3
	return a.length - 1
}

func (a *LineLayoutArray) At(i int) (x, y int16, data [4]uint8) {
	off := a.offset(i)
	copy(data[:], a.data[off+4:off+8])
	return a.int16At(off), a.int16At(off + 2), data
}

// FillExtrusionLayoutArray holds extrusion vertices: position plus normal
// and edge distance.
type FillExtrusionLayoutArray struct{ StructArray }

func NewFillExtrusionLayoutArray() *FillExtrusionLayoutArray {
	return &FillExtrusionLayoutArray{newStructArray(FillExtrusionLayout)}
}

func (a *FillExtrusionLayoutArray) EmplaceBack(x, y, nx, ny, nz, ed int16) int {
	off := a.emplace()
	a.putInt16(off, x)
	a.putInt16(off+2, y)
	a.putInt16(off+4, nx)
	a.putInt16(off+6, ny)
	a.putInt16(off+8, nz)
	a.putInt16(off+10, ed)
	return a.length - 1
}

func (a *FillExtrusionLayoutArray) At(i int) [6]int16 {
	off := a.offset(i)
	var out [6]int16
	for k := range out {
		out[k] = a.int16At(off + 2*k)
	}
	return out
}

// TriangleIndexArray holds uint16 vertex triples.
type TriangleIndexArray struct{ StructArray }

func NewTriangleIndexArray() *TriangleIndexArray {
	return &TriangleIndexArray{newStructArray(TriangleLayout)}
}

func (a *TriangleIndexArray) EmplaceBack(v0, v1, v2 int) int {
	off := a.emplace()
	a.putUint16(off, uint16(v0))
	a.putUint16(off+2, uint16(v1))
	a.putUint16(off+4, uint16(v2))
	return a.length - 1
}

func (a *TriangleIndexArray) At(i int) [3]uint16 {
	off := a.offset(i)
	return [3]uint16{a.uint16At(off), a.uint16At(off + 2), a.uint16At(off + 4)}
}

// LineIndexArray holds uint16 vertex pairs.
type LineIndexArray struct{ StructArray }

func NewLineIndexArray() *LineIndexArray { return &LineIndexArray{newStructArray(LineIndexLayout)} }

func (a *LineIndexArray) EmplaceBack(v0, v1 int) int {
	off := a.emplace()
	a.putUint16(off, uint16(v0))
	a.putUint16(off+2, uint16(v1))
	return a.length - 1
}

func (a *LineIndexArray) At(i int) [2]uint16 {
	off := a.offset(i)
	return [2]uint16{a.uint16At(off), a.uint16At(off + 2)}
}

// FeatureIndexEntry locates an indexed feature in the source tile.
type FeatureIndexEntry struct {
	FeatureIndex     uint32
	SourceLayerIndex uint16
	BucketIndex      uint16
}

// FeatureIndexArray maps feature-index keys to source features.
type FeatureIndexArray struct{ StructArray }

func NewFeatureIndexArray() *FeatureIndexArray {
	return &FeatureIndexArray{newStructArray(FeatureIndexLayout)}
}

func (a *FeatureIndexArray) EmplaceBack(featureIndex uint32, sourceLayerIndex, bucketIndex uint16) int {
	off := a.emplace()
	a.putUint32(off, featureIndex)
	a.putUint16(off+4, sourceLayerIndex)
	a.putUint16(off+6, bucketIndex)
	return a.length - 1
}

func (a *FeatureIndexArray) At(i int) FeatureIndexEntry {
	off := a.offset(i)
	return FeatureIndexEntry{
		FeatureIndex:     a.uint32At(off),
		SourceLayerIndex: a.uint16At(off + 4),
		BucketIndex:      a.uint16At(off + 6),
	}
}

// CollisionBox is one symbol collision box in tile units relative to its anchor.
type CollisionBox struct {
	AnchorX, AnchorY int16
	X1, Y1, X2, Y2   int16
	FeatureIndex     uint32
	SourceLayerIndex uint16
	BucketIndex      uint16
}

// CollisionBoxArray collects collision boxes produced by symbol layout.
type CollisionBoxArray struct{ StructArray }

func NewCollisionBoxArray() *CollisionBoxArray {
	return &CollisionBoxArray{newStructArray(CollisionBoxLayout)}
}

func (a *CollisionBoxArray) EmplaceBack(b CollisionBox) int {
	off := a.emplace()
	a.putInt16(off, b.AnchorX)
	a.putInt16(off+2, b.AnchorY)
	a.putInt16(off+4, b.X1)
	a.putInt16(off+6, b.Y1)
	a.putInt16(off+8, b.X2)
	a.putInt16(off+10, b.Y2)
	a.putUint32(off+12, b.FeatureIndex)
	a.putUint16(off+16, b.SourceLayerIndex)
	a.putUint16(off+18, b.BucketIndex)
	return a.length - 1
}

func (a *CollisionBoxArray) At(i int) CollisionBox {
	off := a.offset(i)
	return CollisionBox{
		AnchorX:          a.int16At(off),
		AnchorY:          a.int16At(off + 2),
		X1:               a.int16At(off + 4),
		Y1:               a.int16At(off + 6),
		X2:               a.int16At(off + 8),
		Y2:               a.int16At(off + 10),
		FeatureIndex:     a.uint32At(off + 12),
		SourceLayerIndex: a.uint16At(off + 16),
		BucketIndex:      a.uint16At(off + 18),
	}
}

// PaintArray holds per-vertex float paint attribute values.
type PaintArray struct {
	StructArray
	components int
}

func NewPaintArray(name string, components int) *PaintArray {
	return &PaintArray{StructArray: newStructArray(PaintLayout(name, components)), components: components}
}

// Components returns the number of floats per vertex.
func (a *PaintArray) Components() int { return a.components }

// Set writes the value of vertex i, which must already exist.
func (a *PaintArray) Set(i int, values ...float32) {
	off := a.offset(i)
	for k := 0; k < a.components && k < len(values); k++ {
		a.putFloat32(off+4*k, values[k])
	}
}

// Fill writes the same value into vertices [start, end), growing the array
// to end if needed.
func (a *PaintArray) Fill(start, end int, values ...float32) {
	if end > a.length {
		a.Resize(end)
	}
	for i := start; i < end; i++ {
		a.Set(i, values...)
	}
}

func (a *PaintArray) At(i int) []float32 {
	off := a.offset(i)
	out := make([]float32, a.components)
	for k := range out {
		out[k] = a.float32At(off + 4*k)
	}
	return out
}

// WrapPos views a StructArray decoded from bytes as a PosArray. The other
// Wrap functions do the same for their layouts.
func WrapPos(s *StructArray) *PosArray { return &PosArray{*s} }

func WrapLine(s *StructArray) *LineLayoutArray { return &LineLayoutArray{*s} }

func WrapFillExtrusion(s *StructArray) *FillExtrusionLayoutArray {
	return &FillExtrusionLayoutArray{*s}
}

func WrapTriangles(s *StructArray) *TriangleIndexArray { return &TriangleIndexArray{*s} }

func WrapLineIndices(s *StructArray) *LineIndexArray { return &LineIndexArray{*s} }

func WrapFeatureIndex(s *StructArray) *FeatureIndexArray { return &FeatureIndexArray{*s} }

func WrapCollisionBoxes(s *StructArray) *CollisionBoxArray { return &CollisionBoxArray{*s} }

func WrapPaint(s *StructArray) *PaintArray {
	return &PaintArray{StructArray: *s, components: s.layout.Attributes[0].Components}
}

// CircleLayoutArray is the circle and heatmap vertex array. Each vertex is
// the doubled position with the quad corner folded into the low bit.
type CircleLayoutArray = PosArray

func NewCircleLayoutArray() *CircleLayoutArray { return NewPosArray() }
