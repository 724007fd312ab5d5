package style

import "github.com/beetlebugorg/vtgeom/pkg/vt"

// EvaluationParameters are the inputs a property evaluation depends on
// besides the feature.
type EvaluationParameters struct {
	Zoom float64
}

// defaults for the properties the pipeline reads.
var defaults = map[string]any{
	"circle-radius":            5.0,
	"circle-color":             "#000000",
	"circle-opacity":           1.0,
	"circle-blur":              0.0,
	"circle-stroke-width":      0.0,
	"circle-stroke-color":      "#000000",
	"circle-stroke-opacity":    1.0,
	"circle-translate":         []any{0.0, 0.0},
	"heatmap-radius":           30.0,
	"heatmap-weight":           1.0,
	"heatmap-intensity":        1.0,
	"fill-color":               "#000000",
	"fill-opacity":             1.0,
	"fill-outline-color":       "#000000",
	"fill-translate":           []any{0.0, 0.0},
	"fill-antialias":           true,
	"line-width":               1.0,
	"line-gap-width":           0.0,
	"line-offset":              0.0,
	"line-blur":                0.0,
	"line-color":               "#000000",
	"line-opacity":             1.0,
	"line-translate":           []any{0.0, 0.0},
	"line-join":                "miter",
	"line-cap":                 "butt",
	"line-miter-limit":         2.0,
	"line-round-limit":         1.05,
	"fill-extrusion-color":     "#000000",
	"fill-extrusion-opacity":   1.0,
	"fill-extrusion-height":    0.0,
	"fill-extrusion-base":      0.0,
	"fill-extrusion-translate": []any{0.0, 0.0},
	"text-field":               "",
	"text-font":                []any{"Open Sans Regular", "Arial Unicode MS Regular"},
	"text-size":                16.0,
	"text-transform":           "none",
	"icon-image":               "",
	"symbol-placement":         "point",
	"symbol-sort-key":          nil,
}

// DefaultValue returns the default of a property, or nil if it has none.
func DefaultValue(name string) any { return defaults[name] }

// Evaluated is an immutable snapshot of a layer's properties at one zoom.
// Feature-constant properties are resolved once; data-driven ones are
// evaluated per feature on request.
type Evaluated struct {
	Layer     *Layer
	Zoom      float64
	constants map[string]any
}

// Evaluate snapshots the layer's properties at the given parameters.
func (l *Layer) Evaluate(p EvaluationParameters) *Evaluated {
	e := &Evaluated{Layer: l, Zoom: p.Zoom, constants: make(map[string]any, len(l.Paint)+len(l.Layout))}
	resolve := func(props map[string]*PropertyValue) {
		for name, pv := range props {
			if !pv.IsFeatureConstant() {
				continue
			}
			if v, ok := pv.Evaluate(p.Zoom, nil, nil); ok {
				e.constants[name] = v
			}
		}
	}
	resolve(l.Layout)
	resolve(l.Paint)
	return e
}

func (e *Evaluated) property(name string) *PropertyValue {
	if pv, ok := e.Layer.Paint[name]; ok {
		return pv
	}
	return e.Layer.Layout[name]
}

// Has reports whether the style sets the property explicitly.
func (e *Evaluated) Has(name string) bool { return e.property(name) != nil }

// IsDataDriven reports whether the property varies per feature.
func (e *Evaluated) IsDataDriven(name string) bool {
	pv := e.property(name)
	return pv != nil && !pv.IsFeatureConstant()
}

// Constant returns the value of a property that does not vary per feature.
func (e *Evaluated) Constant(name string) (any, bool) {
	if e.IsDataDriven(name) {
		return nil, false
	}
	if v, ok := e.constants[name]; ok {
		return v, true
	}
	v := defaults[name]
	return v, v != nil
}

// Value evaluates a property for a feature. Either f or state may be nil.
func (e *Evaluated) Value(name string, f vt.Feature, state FeatureState) any {
	if v, ok := e.constants[name]; ok {
		return v
	}
	if pv := e.property(name); pv != nil && !pv.IsFeatureConstant() {
		if v, ok := pv.Evaluate(e.Zoom, f, state); ok {
			return v
		}
	}
	return defaults[name]
}

// Number evaluates a numeric property.
func (e *Evaluated) Number(name string, f vt.Feature) float64 {
	return e.NumberWithState(name, f, nil)
}

// NumberWithState evaluates a numeric property that may read feature state.
func (e *Evaluated) NumberWithState(name string, f vt.Feature, state FeatureState) float64 {
	n, _ := toNumber(e.Value(name, f, state))
	return n
}

// OptionalNumber evaluates a numeric property that has no default, such as
// a sort key.
func (e *Evaluated) OptionalNumber(name string, f vt.Feature) (float64, bool) {
	v := e.Value(name, f, nil)
	if v == nil {
		return 0, false
	}
	return toNumber(v)
}

// String evaluates a string property.
func (e *Evaluated) String(name string, f vt.Feature) string {
	return toString(e.Value(name, f, nil))
}

// Strings evaluates a string array property, such as text-font.
func (e *Evaluated) Strings(name string, f vt.Feature) []string {
	switch v := e.Value(name, f, nil).(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, toString(s))
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// Color evaluates a color property.
func (e *Evaluated) Color(name string, f vt.Feature, state FeatureState) Color {
	if c, ok := toColor(e.Value(name, f, state)); ok {
		return c
	}
	c, _ := toColor(defaults[name])
	return c
}

// Vec2 evaluates a two-component numeric property, such as a translation.
func (e *Evaluated) Vec2(name string) [2]float64 {
	var out [2]float64
	if v, ok := e.Value(name, nil, nil).([]any); ok {
		for i := 0; i < len(v) && i < 2; i++ {
			out[i], _ = toNumber(v[i])
		}
	}
	return out
}

// IsColorProperty reports whether a paint property holds a color.
func IsColorProperty(name string) bool {
	return len(name) > 6 && name[len(name)-6:] == "-color"
}
