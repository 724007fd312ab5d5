package vt

// MemoryFeature is a Feature held in memory.
type MemoryFeature struct {
	GeomType   GeomType
	FeatureID  *uint64
	Props      map[string]any
	Rings      []Ring
	ExtentSize int
}

func (f *MemoryFeature) Type() GeomType { return f.GeomType }

func (f *MemoryFeature) ID() (uint64, bool) {
	if f.FeatureID == nil {
		return 0, false
	}
	return *f.FeatureID, true
}

func (f *MemoryFeature) Properties() map[string]any { return f.Props }

func (f *MemoryFeature) Extent() int {
	if f.ExtentSize == 0 {
		return DefaultExtent
	}
	return f.ExtentSize
}

func (f *MemoryFeature) LoadGeometry() []Ring {
	out := make([]Ring, len(f.Rings))
	for i, r := range f.Rings {
		out[i] = append(Ring(nil), r...)
	}
	return out
}

// MemoryLayer is a Layer held in memory. Features without an extent of
// their own inherit the layer's.
type MemoryLayer struct {
	LayerName    string
	ExtentSize   int
	SpecVersion  int
	FeatureSlice []*MemoryFeature
}

func (l *MemoryLayer) Name() string { return l.LayerName }

func (l *MemoryLayer) Extent() int {
	if l.ExtentSize == 0 {
		return DefaultExtent
	}
	return l.ExtentSize
}

func (l *MemoryLayer) Version() int {
	if l.SpecVersion == 0 {
		return 2
	}
	return l.SpecVersion
}

func (l *MemoryLayer) Len() int { return len(l.FeatureSlice) }

func (l *MemoryLayer) Feature(i int) Feature {
	f := l.FeatureSlice[i]
	if f.ExtentSize == 0 {
		c := *f
		c.ExtentSize = l.Extent()
		return &c
	}
	return f
}

// NewMemoryTile builds a VectorTile from in-memory layers.
func NewMemoryTile(layers ...*MemoryLayer) *VectorTile {
	t := &VectorTile{Layers: make(map[string]Layer, len(layers))}
	for _, l := range layers {
		t.Layers[l.LayerName] = l
	}
	return t
}
