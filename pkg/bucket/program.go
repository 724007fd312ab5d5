package bucket

import (
	"sort"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/gpu"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

type attrKind uint8

const (
	attrNumber attrKind = iota
	attrColor
	attrPattern
)

// paintAttribute is a paint property that becomes a vertex attribute when
// it is data-driven.
type paintAttribute struct {
	property string
	kind     attrKind
}

func (a paintAttribute) components() int {
	switch a.kind {
	case attrColor:
		return 4
	case attrPattern:
		return 8
	default:
		return 1
	}
}

var paintAttributes = map[style.Type][]paintAttribute{
	style.Circle: {
		{"circle-radius", attrNumber},
		{"circle-color", attrColor},
		{"circle-blur", attrNumber},
		{"circle-opacity", attrNumber},
		{"circle-stroke-color", attrColor},
		{"circle-stroke-width", attrNumber},
		{"circle-stroke-opacity", attrNumber},
	},
	style.Heatmap: {
		{"heatmap-weight", attrNumber},
		{"heatmap-radius", attrNumber},
	},
	style.Fill: {
		{"fill-color", attrColor},
		{"fill-opacity", attrNumber},
		{"fill-outline-color", attrColor},
		{"fill-pattern", attrPattern},
	},
	style.Line: {
		{"line-color", attrColor},
		{"line-blur", attrNumber},
		{"line-opacity", attrNumber},
		{"line-gap-width", attrNumber},
		{"line-offset", attrNumber},
		{"line-width", attrNumber},
		{"line-pattern", attrPattern},
	},
	style.FillExtrusion: {
		{"fill-extrusion-color", attrColor},
		{"fill-extrusion-height", attrNumber},
		{"fill-extrusion-base", attrNumber},
		{"fill-extrusion-pattern", attrPattern},
	},
}

// FeaturePosition is the vertex range [Start, End) written for the feature
// at Index in its source layer.
type FeaturePosition struct {
	Index      int
	Start, End int
}

// ProgramConfiguration holds one layer's data-driven paint attributes,
// one value per vertex.
type ProgramConfiguration struct {
	LayerID string
	// Binders holds a paint array per data-driven property.
	Binders map[string]*array.PaintArray
	// MaxValues is the largest value seen per numeric property.
	MaxValues map[string]float64
	// FeatureMap locates the vertices of each feature by feature key.
	FeatureMap map[uint64][]FeaturePosition

	layer   *style.Evaluated
	attrs   []paintAttribute
	dirty   bool
	buffers map[string]gpu.VertexBuffer
}

func newProgramConfiguration(kind style.Type, layer *style.Evaluated) *ProgramConfiguration {
	pc := &ProgramConfiguration{
		LayerID:    layer.Layer.ID,
		Binders:    make(map[string]*array.PaintArray),
		MaxValues:  make(map[string]float64),
		FeatureMap: make(map[uint64][]FeaturePosition),
		layer:      layer,
	}
	for _, a := range paintAttributes[kind] {
		if !layer.IsDataDriven(a.property) {
			continue
		}
		pc.attrs = append(pc.attrs, a)
		pc.Binders[a.property] = array.NewPaintArray(a.property, a.components())
	}
	return pc
}

// Layer returns the evaluated layer the configuration serves.
func (pc *ProgramConfiguration) Layer() *style.Evaluated { return pc.layer }

func (pc *ProgramConfiguration) values(a paintAttribute, f vt.Feature, state style.FeatureState, pattern string, images atlas.Positions) []float32 {
	switch a.kind {
	case attrColor:
		c := pc.layer.Color(a.property, f, state).Premultiplied()
		return c[:]
	case attrPattern:
		pos, ok := images[pattern]
		if !ok {
			return make([]float32, 8)
		}
		tlbr := pos.TLBR()
		// same image at both ends of the zoom cross-fade
		return []float32{tlbr[0], tlbr[1], tlbr[2], tlbr[3], tlbr[0], tlbr[1], tlbr[2], tlbr[3]}
	default:
		v := pc.layer.NumberWithState(a.property, f, state)
		if cur, ok := pc.MaxValues[a.property]; !ok || v > cur {
			pc.MaxValues[a.property] = v
		}
		return []float32{float32(v)}
	}
}

func (pc *ProgramConfiguration) populate(length int, f IndexedFeature, patterns map[string]string, images atlas.Positions) {
	if len(pc.attrs) == 0 {
		return
	}
	var start int
	for _, a := range pc.attrs {
		binder := pc.Binders[a.property]
		start = binder.Len()
		binder.Fill(start, length, pc.values(a, f.Feature, nil, patterns[pc.LayerID], images)...)
	}
	if key, ok := FeatureKey(f.ID); ok && start < length {
		pc.FeatureMap[key] = append(pc.FeatureMap[key], FeaturePosition{Index: f.Index, Start: start, End: length})
	}
	pc.dirty = true
}

func (pc *ProgramConfiguration) update(states FeatureStates, layer vt.Layer, images atlas.Positions) bool {
	if !pc.layer.Layer.IsStateDependent() {
		return false
	}
	changed := false
	for key, state := range states {
		for _, pos := range pc.FeatureMap[key] {
			if pos.Index >= layer.Len() {
				continue
			}
			f := layer.Feature(pos.Index)
			for _, a := range pc.attrs {
				if a.kind == attrPattern {
					continue
				}
				pc.Binders[a.property].Fill(pos.Start, pos.End, pc.values(a, f, state, "", images)...)
			}
			changed = true
		}
	}
	if changed {
		pc.dirty = true
	}
	return changed
}

// ProgramConfigurationSet holds the program configuration of every layer
// of a bucket.
type ProgramConfigurationSet struct {
	configs map[string]*ProgramConfiguration
	order   []string
}

// NewProgramConfigurationSet creates empty paint arrays for the data-driven
// paint properties of each layer.
func NewProgramConfigurationSet(kind style.Type, layers []*style.Evaluated) *ProgramConfigurationSet {
	s := &ProgramConfigurationSet{configs: make(map[string]*ProgramConfiguration, len(layers))}
	for _, l := range layers {
		s.configs[l.Layer.ID] = newProgramConfiguration(kind, l)
		s.order = append(s.order, l.Layer.ID)
	}
	return s
}

// RestoreProgramConfigurationSet rebuilds a set from transferred
// configurations, attaching each to its layer. Configurations for layers
// not in layers are dropped.
func RestoreProgramConfigurationSet(kind style.Type, layers []*style.Evaluated, configs []*ProgramConfiguration) *ProgramConfigurationSet {
	s := NewProgramConfigurationSet(kind, layers)
	for _, c := range configs {
		fresh, ok := s.configs[c.LayerID]
		if !ok {
			continue
		}
		c.layer = fresh.layer
		c.attrs = fresh.attrs
		if c.Binders == nil {
			c.Binders = fresh.Binders
		}
		if c.MaxValues == nil {
			c.MaxValues = fresh.MaxValues
		}
		if c.FeatureMap == nil {
			c.FeatureMap = fresh.FeatureMap
		}
		c.dirty = true
		s.configs[c.LayerID] = c
	}
	return s
}

// Get returns the configuration of a layer.
func (s *ProgramConfigurationSet) Get(layerID string) *ProgramConfiguration {
	return s.configs[layerID]
}

// Configurations returns the configurations in layer order.
func (s *ProgramConfigurationSet) Configurations() []*ProgramConfiguration {
	out := make([]*ProgramConfiguration, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.configs[id])
	}
	return out
}

// PopulatePaintArrays extends every paint array to length vertices with the
// values of feature f.
func (s *ProgramConfigurationSet) PopulatePaintArrays(length int, f IndexedFeature, patterns map[string]string, images atlas.Positions) {
	for _, id := range s.order {
		s.configs[id].populate(length, f, patterns, images)
	}
}

// UpdatePaintArrays rewrites the vertices of features whose state changed
// and reports whether anything did.
func (s *ProgramConfigurationSet) UpdatePaintArrays(states FeatureStates, layer vt.Layer, images atlas.Positions) bool {
	if layer == nil {
		return false
	}
	changed := false
	for _, id := range s.order {
		if s.configs[id].update(states, layer, images) {
			changed = true
		}
	}
	return changed
}

// MaxValue implements style.PaintStats.
func (s *ProgramConfigurationSet) MaxValue(layerID, property string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	pc, ok := s.configs[layerID]
	if !ok {
		return 0, false
	}
	v, ok := pc.MaxValues[property]
	return v, ok
}

// NeedsUpload reports whether any paint array changed since the last
// upload.
func (s *ProgramConfigurationSet) NeedsUpload() bool {
	for _, pc := range s.configs {
		if pc.dirty && len(pc.Binders) > 0 {
			return true
		}
	}
	return false
}

// Upload creates or refreshes the vertex buffers of changed paint arrays.
func (s *ProgramConfigurationSet) Upload(ctx gpu.Context) {
	for _, id := range s.order {
		pc := s.configs[id]
		if !pc.dirty {
			continue
		}
		if pc.buffers == nil {
			pc.buffers = make(map[string]gpu.VertexBuffer, len(pc.Binders))
		}
		names := make([]string, 0, len(pc.Binders))
		for name := range pc.Binders {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			binder := pc.Binders[name]
			if buf, ok := pc.buffers[name]; ok {
				buf.UpdateData(binder.Bytes())
				continue
			}
			pc.buffers[name] = ctx.CreateVertexBuffer(binder.Bytes(), binder.Layout(), true)
		}
		pc.dirty = false
	}
}

// Destroy releases the paint buffers. It is safe to call repeatedly.
func (s *ProgramConfigurationSet) Destroy() {
	for _, pc := range s.configs {
		for _, buf := range pc.buffers {
			buf.Destroy()
		}
		pc.buffers = nil
		pc.dirty = len(pc.Binders) > 0
	}
}
