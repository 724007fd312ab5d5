// Package bucket turns the features of one source layer into vertex and
// index arrays for a family of style layers.
//
// A bucket is created per (tile, layer family). Populate filters and
// tessellates features, registers them in the tile's feature index and
// records the glyph, icon and pattern images they need. Buckets whose
// layers use patterns buffer their features instead and tessellate them in
// AddFeatures once the pattern atlas is known.
package bucket

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/beetlebugorg/vtgeom/internal/geometry"
	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/featureindex"
	"github.com/beetlebugorg/vtgeom/pkg/gpu"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

// ErrInvalidState is returned when an operation does not apply to the
// bucket's population state.
var ErrInvalidState = errors.New("bucket: invalid state")

// State is the population state of a bucket.
type State uint8

const (
	// Unpopulated buckets have not seen features yet.
	Unpopulated State = iota
	// FeaturesBuffered buckets hold features waiting for pattern images.
	FeaturesBuffered
	// Finalized buckets have tessellated every feature.
	Finalized
)

func (s State) String() string {
	switch s {
	case Unpopulated:
		return "unpopulated"
	case FeaturesBuffered:
		return "features-buffered"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// IndexedFeature is a source feature and its position in the tile.
type IndexedFeature struct {
	Feature          vt.Feature
	ID               any
	Index            int
	SourceLayerIndex int
}

// Options carries what buckets of one tile share during population: the
// feature index and the dependency sets they add to.
type Options struct {
	FeatureIndex        *featureindex.FeatureIndex
	IconDependencies    map[string]struct{}
	PatternDependencies map[string]struct{}
	// GlyphDependencies maps a comma-joined font stack to code points.
	GlyphDependencies map[string]map[rune]struct{}
	AvailableImages   []string
	EarcutMaxRings    int
}

// NewOptions returns empty dependency sets around a feature index.
func NewOptions(fi *featureindex.FeatureIndex) *Options {
	return &Options{
		FeatureIndex:        fi,
		IconDependencies:    make(map[string]struct{}),
		PatternDependencies: make(map[string]struct{}),
		GlyphDependencies:   make(map[string]map[rune]struct{}),
		EarcutMaxRings:      geometry.DefaultMaxRings,
	}
}

func (o *Options) insert(rings []geometry.Ring, f IndexedFeature, bucketIndex int, is3D bool) {
	if o.FeatureIndex != nil {
		o.FeatureIndex.Insert(rings, f.Index, f.SourceLayerIndex, bucketIndex, is3D)
	}
}

func (o *Options) maxRings() int {
	if o.EarcutMaxRings > 0 {
		return o.EarcutMaxRings
	}
	return geometry.DefaultMaxRings
}

// Parameters configure a new bucket.
type Parameters struct {
	Index           int
	Layers          []*style.Evaluated
	Zoom            float64
	OverscaleFactor int
	SourceID        string
}

// Bucket is the geometry of one layer family in one tile.
type Bucket interface {
	Kind() style.Type
	Index() int
	Layers() []*style.Evaluated
	LayerIDs() []string
	State() State
	HasPattern() bool

	// Populate filters, tessellates and indexes features.
	Populate(features []IndexedFeature, opts *Options) error
	IsEmpty() bool

	// Programs returns the per-layer paint attribute arrays, or nil.
	Programs() *ProgramConfigurationSet
	// Update rewrites paint attributes that depend on feature state.
	Update(states FeatureStates, layer vt.Layer, images atlas.Positions)

	Upload(ctx gpu.Context)
	Uploaded() bool
	UploadPending() bool
	Destroy()

	// Payload returns the bucket's transferable content.
	Payload() *Payload
}

// PatternBucket is implemented by buckets that can defer tessellation
// until pattern positions are known.
type PatternBucket interface {
	Bucket
	AddFeatures(opts *Options, images atlas.Positions) error
}

// New creates the bucket for a layer family. Layer types without geometry
// (raster, background and hillshade) yield a nil bucket and no error.
func New(p Parameters) (Bucket, error) {
	if len(p.Layers) == 0 {
		return nil, errors.New("bucket: no layers")
	}
	if p.OverscaleFactor < 1 {
		p.OverscaleFactor = 1
	}
	switch t := p.Layers[0].Layer.Type; t {
	case style.Circle:
		return NewCircle(p), nil
	case style.Heatmap:
		return NewHeatmap(p), nil
	case style.Fill:
		return NewFill(p), nil
	case style.Line:
		return NewLine(p), nil
	case style.FillExtrusion:
		return NewFillExtrusion(p), nil
	case style.Symbol:
		return NewSymbol(p), nil
	case style.Raster, style.Background, style.Hillshade:
		return nil, nil
	default:
		return nil, fmt.Errorf("bucket: unsupported layer type %s", t)
	}
}

// ErrTriangulation reports a triangulation whose index count is not a
// multiple of three.
type ErrTriangulation struct {
	Indices int
}

func (e *ErrTriangulation) Error() string {
	return fmt.Sprintf("triangulation produced %d indices, not a multiple of 3", e.Indices)
}

// FeatureStates holds runtime state by feature key.
type FeatureStates map[uint64]style.FeatureState

// FeatureKey maps a feature id to the key used for feature state. Integral
// numbers map to themselves and anything else to a hash of its text.
func FeatureKey(id any) (uint64, bool) {
	switch v := id.(type) {
	case nil:
		return 0, false
	case uint64:
		return v, true
	case int64:
		if v >= 0 {
			return uint64(v), true
		}
	case int:
		if v >= 0 {
			return uint64(v), true
		}
	case float64:
		if v >= 0 && v == math.Trunc(v) && v < 1<<63 {
			return uint64(v), true
		}
		return xxhash.Sum64String(strconv.FormatFloat(v, 'g', -1, 64)), true
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n, true
		}
		return xxhash.Sum64String(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return xxhash.Sum64String(fmt.Sprint(id)), true
}

// feature is a filtered feature ready for tessellation.
type feature struct {
	IndexedFeature
	geometry []geometry.Ring
	sortKey  *float64
	// patterns holds the pattern image per layer id for data-driven
	// pattern properties.
	patterns map[string]string
}

// base holds what every bucket type shares.
type base struct {
	kind        style.Type
	index       int
	zoom        float64
	overscaling int
	layers      []*style.Evaluated
	layerIDs    []string
	programs    *ProgramConfigurationSet
	state       State
	hasPattern  bool
	uploaded    bool
	buffered    []feature
}

func newBase(kind style.Type, p Parameters) base {
	ids := make([]string, len(p.Layers))
	for i, l := range p.Layers {
		ids[i] = l.Layer.ID
	}
	return base{
		kind:        kind,
		index:       p.Index,
		zoom:        p.Zoom,
		overscaling: max(p.OverscaleFactor, 1),
		layers:      p.Layers,
		layerIDs:    ids,
		programs:    NewProgramConfigurationSet(kind, p.Layers),
	}
}

func (b *base) Kind() style.Type                   { return b.kind }
func (b *base) Index() int                         { return b.index }
func (b *base) Layers() []*style.Evaluated         { return b.layers }
func (b *base) LayerIDs() []string                 { return b.layerIDs }
func (b *base) State() State                       { return b.state }
func (b *base) HasPattern() bool                   { return b.hasPattern }
func (b *base) Programs() *ProgramConfigurationSet { return b.programs }
func (b *base) Uploaded() bool                     { return b.uploaded }

func (b *base) UploadPending() bool {
	return !b.uploaded || (b.programs != nil && b.programs.NeedsUpload())
}

func (b *base) Update(states FeatureStates, layer vt.Layer, images atlas.Positions) {
	if b.programs == nil {
		return
	}
	b.programs.UpdatePaintArrays(states, layer, images)
}

// collect filters features with the family's filter, loads their geometry
// and evaluates the sort key property, if any. Features are returned in
// sort key order; ties keep source order.
func (b *base) collect(features []IndexedFeature, sortKeyProperty string) []feature {
	first := b.layers[0]
	sortKeyed := sortKeyProperty != "" && first.Has(sortKeyProperty)
	out := make([]feature, 0, len(features))
	for _, f := range features {
		if !first.Layer.Filter.Eval(b.zoom, f.Feature) {
			continue
		}
		bf := feature{IndexedFeature: f, geometry: geometry.Load(f.Feature)}
		if sortKeyed {
			if key, ok := first.OptionalNumber(sortKeyProperty, f.Feature); ok {
				bf.sortKey = &key
			}
		}
		out = append(out, bf)
	}
	if sortKeyed {
		sort.SliceStable(out, func(i, j int) bool { return sortValue(out[i].sortKey) < sortValue(out[j].sortKey) })
	}
	return out
}

func sortValue(k *float64) float64 {
	if k == nil {
		return 0
	}
	return *k
}

// populatePatterns decides whether the family uses patterns. Constant
// patterns are added to the dependencies right away.
func (b *base) populatePatterns(opts *Options) {
	b.hasPattern = false
	for _, l := range b.layers {
		prop := l.Layer.PatternProperty()
		if prop == "" || !l.Has(prop) {
			continue
		}
		if l.IsDataDriven(prop) {
			b.hasPattern = true
			continue
		}
		if v, ok := l.Constant(prop); ok {
			if name, _ := v.(string); name != "" {
				b.hasPattern = true
				opts.PatternDependencies[name] = struct{}{}
			}
		}
	}
}

// addPatternDependencies records the data-driven pattern of each layer for
// a feature about to be buffered.
func (b *base) addPatternDependencies(f *feature, opts *Options) {
	for _, l := range b.layers {
		prop := l.Layer.PatternProperty()
		if prop == "" || !l.IsDataDriven(prop) {
			continue
		}
		name := l.String(prop, f.Feature)
		if name == "" {
			continue
		}
		if f.patterns == nil {
			f.patterns = make(map[string]string)
		}
		f.patterns[l.Layer.ID] = name
		opts.PatternDependencies[name] = struct{}{}
	}
}

// addBuffered runs add over every buffered feature and finalizes the
// bucket.
func (b *base) addBuffered(add func(feature, atlas.Positions) error, images atlas.Positions) error {
	if b.state != FeaturesBuffered {
		return fmt.Errorf("add features in state %s: %w", b.state, ErrInvalidState)
	}
	for _, f := range b.buffered {
		if err := add(f, images); err != nil {
			return err
		}
	}
	b.buffered = nil
	b.state = Finalized
	return nil
}

func (b *base) destroyPrograms() {
	if b.programs != nil {
		b.programs.Destroy()
	}
	b.uploaded = false
}
