package style

// Family is a group of layers sharing type, source, source layer, zoom
// range, filter and layout. They are drawn from one bucket; the first
// layer owns the layout.
type Family []*Layer

// Owner returns the layer whose layout the family uses.
func (f Family) Owner() *Layer { return f[0] }

// IDs returns the ids of every layer in the family.
func (f Family) IDs() []string {
	ids := make([]string, len(f))
	for i, l := range f {
		ids[i] = l.ID
	}
	return ids
}

// LayerIndex groups a style's layers by source, then source layer, into
// families, preserving style order throughout.
type LayerIndex struct {
	layers      map[string]*Layer
	sources     map[string]*sourceIndex
	sourceOrder []string
}

type sourceIndex struct {
	sourceLayers map[string][]Family
	order        []string
}

// LayerIndex builds the family index of the style.
func (s *Style) LayerIndex() *LayerIndex {
	return NewLayerIndex(s.Layers)
}

// NewLayerIndex groups layers into families.
func NewLayerIndex(layers []*Layer) *LayerIndex {
	idx := &LayerIndex{
		layers:  make(map[string]*Layer, len(layers)),
		sources: make(map[string]*sourceIndex),
	}
	familyAt := make(map[string]int)

	for _, l := range layers {
		idx.layers[l.ID] = l
		if l.Type == Background {
			continue
		}
		src, ok := idx.sources[l.Source]
		if !ok {
			src = &sourceIndex{sourceLayers: make(map[string][]Family)}
			idx.sources[l.Source] = src
			idx.sourceOrder = append(idx.sourceOrder, l.Source)
		}
		families, ok := src.sourceLayers[l.SourceLayer]
		if !ok {
			src.order = append(src.order, l.SourceLayer)
		}
		key := l.groupKey()
		if at, ok := familyAt[key]; ok {
			families[at] = append(families[at], l)
		} else {
			familyAt[key] = len(families)
			families = append(families, Family{l})
		}
		src.sourceLayers[l.SourceLayer] = families
	}
	return idx
}

// Layer returns a layer by id.
func (i *LayerIndex) Layer(id string) *Layer { return i.layers[id] }

// Sources returns source ids in style order.
func (i *LayerIndex) Sources() []string { return i.sourceOrder }

// SourceLayers returns the source-layer names used with source, in style
// order.
func (i *LayerIndex) SourceLayers(source string) []string {
	if src, ok := i.sources[source]; ok {
		return src.order
	}
	return nil
}

// Families returns the families drawing from source-layer of source.
func (i *LayerIndex) Families(source, sourceLayer string) []Family {
	if src, ok := i.sources[source]; ok {
		return src.sourceLayers[sourceLayer]
	}
	return nil
}

// groupKey falls back to the layer id for layers built without Parse, so
// they never group.
func (l *Layer) groupKey() string {
	if l.familyKey == "" {
		return "id:" + l.ID
	}
	return l.familyKey
}
