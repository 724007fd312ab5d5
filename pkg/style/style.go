// Package style parses the subset of the Mapbox GL style document the
// geometry pipeline needs and evaluates layer properties.
//
// A Layer is immutable after Parse. Property evaluation happens through
// Layer.Evaluate, which returns an immutable snapshot for one zoom, so
// tiles parsed concurrently at different zooms never share evaluated
// state.
package style

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Type is the closed set of style layer types.
type Type uint8

const (
	Circle Type = iota + 1
	Heatmap
	Fill
	FillExtrusion
	Line
	Symbol
	Raster
	Background
	Hillshade
)

var typeNames = map[Type]string{
	Circle:        "circle",
	Heatmap:       "heatmap",
	Fill:          "fill",
	FillExtrusion: "fill-extrusion",
	Line:          "line",
	Symbol:        "symbol",
	Raster:        "raster",
	Background:    "background",
	Hillshade:     "hillshade",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType maps a style document type name to a Type.
func ParseType(s string) (Type, error) {
	for t, n := range typeNames {
		if n == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown layer type %q", s)
}

// Visibility of a layer.
type Visibility string

const (
	Visible Visibility = "visible"
	None    Visibility = "none"
)

const defaultMaxZoom = 24

// Layer is one parsed style layer.
type Layer struct {
	ID          string
	Type        Type
	Source      string
	SourceLayer string
	MinZoom     float64
	MaxZoom     float64
	Filter      *Filter
	Visibility  Visibility
	Layout      map[string]*PropertyValue
	Paint       map[string]*PropertyValue

	// familyKey identifies layers that share layout and can share a bucket.
	familyKey string
}

// IsHidden reports whether the layer draws nothing at zoom. A fractional
// minzoom takes effect from its integer zoom.
func (l *Layer) IsHidden(zoom float64) bool {
	if l.MinZoom > 0 && zoom < math.Floor(l.MinZoom) {
		return true
	}
	if l.MaxZoom > 0 && zoom >= l.MaxZoom {
		return true
	}
	return l.Visibility == None
}

// HasPattern reports whether the layer's pattern property is set.
func (l *Layer) HasPattern() bool {
	name := patternProperty(l.Type)
	if name == "" {
		return false
	}
	_, ok := l.Paint[name]
	return ok
}

// PatternProperty returns the paint property holding the layer's pattern
// image, or "" for types without patterns.
func (l *Layer) PatternProperty() string { return patternProperty(l.Type) }

func patternProperty(t Type) string {
	switch t {
	case Fill:
		return "fill-pattern"
	case Line:
		return "line-pattern"
	case FillExtrusion:
		return "fill-extrusion-pattern"
	default:
		return ""
	}
}

// IsStateDependent reports whether any paint property reads feature state.
func (l *Layer) IsStateDependent() bool {
	for _, v := range l.Paint {
		if v.IsStateDependent() {
			return true
		}
	}
	return false
}

// Style is a parsed style document.
type Style struct {
	Version int
	Layers  []*Layer
	byID    map[string]*Layer
}

// Layer returns the layer with the given id, or nil.
func (s *Style) Layer(id string) *Layer { return s.byID[id] }

type layerJSON struct {
	ID          string                     `json:"id"`
	Type        string                     `json:"type"`
	Source      string                     `json:"source"`
	SourceLayer string                     `json:"source-layer"`
	MinZoom     *float64                   `json:"minzoom"`
	MaxZoom     *float64                   `json:"maxzoom"`
	Filter      json.RawMessage            `json:"filter"`
	Layout      map[string]json.RawMessage `json:"layout"`
	Paint       map[string]json.RawMessage `json:"paint"`
}

type styleJSON struct {
	Version int         `json:"version"`
	Layers  []layerJSON `json:"layers"`
}

// Parse decodes a style document.
func Parse(data []byte) (*Style, error) {
	var doc styleJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse style: %w", err)
	}

	s := &Style{Version: doc.Version, byID: make(map[string]*Layer, len(doc.Layers))}
	for i, lj := range doc.Layers {
		l, err := parseLayer(lj)
		if err != nil {
			return nil, &ErrInvalidLayer{Index: i, ID: lj.ID, Err: err}
		}
		if _, dup := s.byID[l.ID]; dup {
			return nil, &ErrInvalidLayer{Index: i, ID: lj.ID, Err: fmt.Errorf("duplicate layer id")}
		}
		s.byID[l.ID] = l
		s.Layers = append(s.Layers, l)
	}
	return s, nil
}

func parseLayer(lj layerJSON) (*Layer, error) {
	if lj.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	t, err := ParseType(lj.Type)
	if err != nil {
		return nil, err
	}
	l := &Layer{
		ID:          lj.ID,
		Type:        t,
		Source:      lj.Source,
		SourceLayer: lj.SourceLayer,
		MaxZoom:     defaultMaxZoom,
		Visibility:  Visible,
		Layout:      make(map[string]*PropertyValue, len(lj.Layout)),
		Paint:       make(map[string]*PropertyValue, len(lj.Paint)),
	}
	if lj.MinZoom != nil {
		l.MinZoom = *lj.MinZoom
	}
	if lj.MaxZoom != nil {
		l.MaxZoom = *lj.MaxZoom
	}
	if len(lj.Filter) > 0 && !bytes.Equal(lj.Filter, []byte("null")) {
		if l.Filter, err = ParseFilter(lj.Filter); err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
	}
	for name, raw := range lj.Layout {
		if name == "visibility" {
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("layout %s: %w", name, err)
			}
			l.Visibility = Visibility(v)
			continue
		}
		pv, err := ParsePropertyValue(raw)
		if err != nil {
			return nil, fmt.Errorf("layout %s: %w", name, err)
		}
		l.Layout[name] = pv
	}
	for name, raw := range lj.Paint {
		pv, err := ParsePropertyValue(raw)
		if err != nil {
			return nil, fmt.Errorf("paint %s: %w", name, err)
		}
		l.Paint[name] = pv
	}

	key, err := familyKey(lj)
	if err != nil {
		return nil, err
	}
	l.familyKey = key
	return l, nil
}

// familyKey serializes the properties that must match for two layers to
// share a bucket. Maps marshal with sorted keys, so equal layouts produce
// equal keys.
func familyKey(lj layerJSON) (string, error) {
	layout := make(map[string]json.RawMessage, len(lj.Layout))
	for k, v := range lj.Layout {
		var compact bytes.Buffer
		if err := json.Compact(&compact, v); err != nil {
			return "", err
		}
		layout[k] = compact.Bytes()
	}
	var filter bytes.Buffer
	if len(lj.Filter) > 0 {
		if err := json.Compact(&filter, lj.Filter); err != nil {
			return "", err
		}
	}
	key, err := json.Marshal([]any{lj.Type, lj.Source, lj.SourceLayer, lj.MinZoom, lj.MaxZoom, json.RawMessage(orNull(filter.Bytes())), layout})
	if err != nil {
		return "", err
	}
	return string(key), nil
}

func orNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
