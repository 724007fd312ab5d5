package bucket

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/geometry"
	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/gpu"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

// glyphBaseSize is the font size glyph metrics are rasterized at.
const glyphBaseSize = 24

var tokenPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// SymbolFeature is a feature with resolved text and icon, waiting for
// layout.
type SymbolFeature struct {
	IndexedFeature
	Geometry  []geometry.Ring
	Text      string
	Icon      string
	FontStack string
	TextSize  float64
	SortKey   *float64
}

// SymbolInstance is one placed symbol. The box is in pixels around the
// anchor.
type SymbolInstance struct {
	Anchor           geometry.Point
	FeatureIndex     int
	SourceLayerIndex int
	Text             string
	Icon             string
	X1, Y1, X2, Y2   float64
}

// SymbolLayouter places symbols once glyph and icon positions are known.
type SymbolLayouter interface {
	Layout(features []SymbolFeature, glyphs atlas.GlyphPositions, icons atlas.Positions) ([]SymbolInstance, error)
}

// SymbolBucket collects labelled features and the glyphs and icons they
// need. Placement is done by a SymbolLayouter.
type SymbolBucket struct {
	base
	Features  []SymbolFeature
	Instances []SymbolInstance
	// JustReloaded marks a bucket installed by a reload, so placement can
	// carry over the previous bucket's fade state.
	JustReloaded bool
}

// NewSymbol returns an empty symbol bucket.
func NewSymbol(p Parameters) *SymbolBucket {
	return &SymbolBucket{base: newBase(style.Symbol, p)}
}

func (b *SymbolBucket) Populate(features []IndexedFeature, opts *Options) error {
	layout := b.layers[0]
	hasText := layout.Has("text-field")
	hasIcon := layout.Has("icon-image")

	for _, f := range b.collect(features, "symbol-sort-key") {
		sf := SymbolFeature{
			IndexedFeature: f.IndexedFeature,
			Geometry:       f.geometry,
			SortKey:        f.sortKey,
			TextSize:       layout.Number("text-size", f.Feature),
		}
		if hasText {
			sf.Text = transformText(resolveTokens(f.Feature.Properties(), layout.String("text-field", f.Feature)),
				layout.String("text-transform", f.Feature))
			sf.FontStack = strings.Join(layout.Strings("text-font", f.Feature), ",")
		}
		if hasIcon {
			sf.Icon = resolveTokens(f.Feature.Properties(), layout.String("icon-image", f.Feature))
		}
		if sf.Text == "" && sf.Icon == "" {
			continue
		}

		if sf.Text != "" {
			stack, ok := opts.GlyphDependencies[sf.FontStack]
			if !ok {
				stack = make(map[rune]struct{})
				opts.GlyphDependencies[sf.FontStack] = stack
			}
			for _, r := range sf.Text {
				stack[r] = struct{}{}
			}
		}
		if sf.Icon != "" {
			opts.IconDependencies[sf.Icon] = struct{}{}
		}
		b.Features = append(b.Features, sf)
	}
	b.state = FeaturesBuffered
	return nil
}

// Layout places the collected features and appends a collision box per
// placed symbol. A nil layouter places nothing.
func (b *SymbolBucket) Layout(layouter SymbolLayouter, glyphs atlas.GlyphPositions, icons atlas.Positions, boxes *array.CollisionBoxArray) error {
	if b.state != FeaturesBuffered {
		return fmt.Errorf("layout symbols in state %s: %w", b.state, ErrInvalidState)
	}
	if layouter != nil && len(b.Features) > 0 {
		instances, err := layouter.Layout(b.Features, glyphs, icons)
		if err != nil {
			return fmt.Errorf("layout symbols for %s: %w", b.layerIDs[0], err)
		}
		b.Instances = instances
	}
	if boxes != nil {
		for _, in := range b.Instances {
			boxes.EmplaceBack(array.CollisionBox{
				AnchorX:          int16(in.Anchor.X),
				AnchorY:          int16(in.Anchor.Y),
				X1:               int16(math.Floor(in.X1)),
				Y1:               int16(math.Floor(in.Y1)),
				X2:               int16(math.Ceil(in.X2)),
				Y2:               int16(math.Ceil(in.Y2)),
				FeatureIndex:     uint32(in.FeatureIndex),
				SourceLayerIndex: uint16(in.SourceLayerIndex),
				BucketIndex:      uint16(b.index),
			})
		}
	}
	b.Features = nil
	b.state = Finalized
	return nil
}

func (b *SymbolBucket) IsEmpty() bool { return len(b.Instances) == 0 }

func (b *SymbolBucket) Upload(ctx gpu.Context) { b.uploaded = true }

func (b *SymbolBucket) Destroy() { b.destroyPrograms() }

// Update is a no-op; symbol paint lives with the external layout.
func (b *SymbolBucket) Update(FeatureStates, vt.Layer, atlas.Positions) {}

// resolveTokens replaces {name} with the feature's name property.
func resolveTokens(props map[string]any, s string) string {
	return tokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		v, ok := props[tok[1:len(tok)-1]]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
}

// transformText applies text-transform and normalizes to NFC so equal
// labels request equal glyphs.
func transformText(s, transform string) string {
	switch transform {
	case "uppercase":
		s = cases.Upper(language.Und).String(s)
	case "lowercase":
		s = cases.Lower(language.Und).String(s)
	}
	return norm.NFC.String(s)
}

// PointLayouter places one symbol per feature: at every in-tile point of
// point features, and at the first in-tile vertex otherwise. Boxes come
// from glyph advances and icon sizes. It does no line shaping or
// collision detection.
type PointLayouter struct{}

func (PointLayouter) Layout(features []SymbolFeature, glyphs atlas.GlyphPositions, icons atlas.Positions) ([]SymbolInstance, error) {
	var out []SymbolInstance
	for _, f := range features {
		w, h := symbolSize(f, glyphs, icons)
		place := func(p geometry.Point) {
			out = append(out, SymbolInstance{
				Anchor:           p,
				FeatureIndex:     f.Index,
				SourceLayerIndex: f.SourceLayerIndex,
				Text:             f.Text,
				Icon:             f.Icon,
				X1:               -w / 2,
				Y1:               -h / 2,
				X2:               w / 2,
				Y2:               h / 2,
			})
		}
		if f.Feature.Type() == vt.Point {
			for _, ring := range f.Geometry {
				for _, p := range ring {
					if geometry.InTile(p) {
						place(p)
					}
				}
			}
			continue
		}
	first:
		for _, ring := range f.Geometry {
			for _, p := range ring {
				if geometry.InTile(p) {
					place(p)
					break first
				}
			}
		}
	}
	return out, nil
}

func symbolSize(f SymbolFeature, glyphs atlas.GlyphPositions, icons atlas.Positions) (w, h float64) {
	if f.Text != "" {
		scale := f.TextSize / glyphBaseSize
		advance := 0
		stack := glyphs[f.FontStack]
		for _, r := range f.Text {
			if g, ok := stack[r]; ok {
				advance += g.Metrics.Advance
			}
		}
		w, h = float64(advance)*scale, f.TextSize
	}
	if pos, ok := icons[f.Icon]; ok && f.Icon != "" {
		size := pos.DisplaySize()
		w, h = math.Max(w, size[0]), math.Max(h, size[1])
	}
	return w, h
}
