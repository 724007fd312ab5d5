package style

import (
	"encoding/json"
	"fmt"

	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

// Filter is a compiled legacy filter expression.
//
//	["==", key, value]  ["!=", key, value]
//	["<", key, value]   ["<=", ...] [">", ...] [">=", ...]
//	["in", key, v...]   ["!in", key, v...]
//	["has", key]        ["!has", key]
//	["all", f...]       ["any", f...]      ["none", f...]
//
// The keys "$type" and "$id" select the geometry type and feature id. A key
// may also be written ["get", key], ["geometry-type"] or ["id"].
type Filter struct {
	op       string
	key      string
	values   []any
	children []*Filter
}

// ParseFilter compiles a filter from JSON.
func ParseFilter(raw json.RawMessage) (*Filter, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return compileFilter(v)
}

// MustParseFilter is ParseFilter that panics on error, for literals in code.
func MustParseFilter(s string) *Filter {
	f, err := ParseFilter(json.RawMessage(s))
	if err != nil {
		panic(err)
	}
	return f
}

func compileFilter(v any) (*Filter, error) {
	arr, ok := v.([]any)
	if !ok {
		if b, isBool := v.(bool); isBool {
			if b {
				return &Filter{op: "all"}, nil
			}
			return &Filter{op: "any"}, nil
		}
		return nil, &ErrInvalidProperty{Reason: fmt.Sprintf("filter must be an array, got %T", v)}
	}
	if len(arr) == 0 {
		return &Filter{op: "all"}, nil
	}
	op, ok := arr[0].(string)
	if !ok {
		return nil, &ErrInvalidProperty{Reason: "filter operator must be a string"}
	}
	f := &Filter{op: op}
	switch op {
	case "all", "any", "none":
		for _, c := range arr[1:] {
			child, err := compileFilter(c)
			if err != nil {
				return nil, err
			}
			f.children = append(f.children, child)
		}
	case "==", "!=", "<", "<=", ">", ">=":
		if len(arr) != 3 {
			return nil, &ErrInvalidProperty{Reason: fmt.Sprintf("%q filter takes a key and a value", op)}
		}
		key, err := filterKey(arr[1])
		if err != nil {
			return nil, err
		}
		f.key = key
		f.values = []any{normalize(arr[2])}
	case "in", "!in":
		if len(arr) < 2 {
			return nil, &ErrInvalidProperty{Reason: fmt.Sprintf("%q filter needs a key", op)}
		}
		key, err := filterKey(arr[1])
		if err != nil {
			return nil, err
		}
		f.key = key
		for _, v := range arr[2:] {
			f.values = append(f.values, normalize(v))
		}
	case "has", "!has":
		if len(arr) != 2 {
			return nil, &ErrInvalidProperty{Reason: fmt.Sprintf("%q filter takes a key", op)}
		}
		key, err := filterKey(arr[1])
		if err != nil {
			return nil, err
		}
		f.key = key
	default:
		return nil, &ErrInvalidProperty{Reason: fmt.Sprintf("unsupported filter operator %q", op)}
	}
	return f, nil
}

func filterKey(v any) (string, error) {
	switch k := v.(type) {
	case string:
		return k, nil
	case []any:
		if len(k) == 1 && k[0] == "geometry-type" {
			return "$type", nil
		}
		if len(k) == 1 && k[0] == "id" {
			return "$id", nil
		}
		if len(k) == 2 && k[0] == "get" {
			if s, ok := k[1].(string); ok {
				return s, nil
			}
		}
	}
	return "", &ErrInvalidProperty{Reason: fmt.Sprintf("unsupported filter key %v", v)}
}

// Eval reports whether feature passes the filter. A nil filter passes
// everything.
func (f *Filter) Eval(zoom float64, feature vt.Feature) bool {
	if f == nil {
		return true
	}
	switch f.op {
	case "all":
		for _, c := range f.children {
			if !c.Eval(zoom, feature) {
				return false
			}
		}
		return true
	case "any":
		for _, c := range f.children {
			if c.Eval(zoom, feature) {
				return true
			}
		}
		return false
	case "none":
		for _, c := range f.children {
			if c.Eval(zoom, feature) {
				return false
			}
		}
		return true
	case "has":
		_, ok := filterValue(feature, f.key)
		return ok
	case "!has":
		_, ok := filterValue(feature, f.key)
		return !ok
	case "in", "!in":
		v, _ := filterValue(feature, f.key)
		found := false
		for _, want := range f.values {
			if equalValues(v, want) {
				found = true
				break
			}
		}
		return found == (f.op == "in")
	case "==":
		v, _ := filterValue(feature, f.key)
		return equalValues(v, f.values[0])
	case "!=":
		v, _ := filterValue(feature, f.key)
		return !equalValues(v, f.values[0])
	default:
		v, ok := filterValue(feature, f.key)
		if !ok {
			return false
		}
		return compareOrdered(f.op, v, f.values[0])
	}
}

func filterValue(feature vt.Feature, key string) (any, bool) {
	switch key {
	case "$type":
		return feature.Type().String(), true
	case "$id":
		id, ok := feature.ID()
		if !ok {
			return nil, false
		}
		return float64(id), true
	}
	return featureProperty(feature, key)
}

// compareOrdered compares two numbers or two strings. Mixed types never
// match.
func compareOrdered(op string, a, b any) bool {
	var c int
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		c = cmpOrdered(av, bv)
	case string:
		bv, ok := b.(string)
		if !ok {
			return false
		}
		c = cmpOrdered(av, bv)
	default:
		return false
	}
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

func cmpOrdered[T float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
