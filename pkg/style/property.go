package style

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

// FeatureState is mutable per-feature state set at runtime, such as hover.
type FeatureState map[string]any

type valueKind uint8

const (
	kindConstant valueKind = iota
	kindZoomFunction
	kindPropertyFunction
	kindExpression
)

// Function interpolation types.
const (
	FunctionExponential = "exponential"
	FunctionInterval    = "interval"
	FunctionCategorical = "categorical"
	FunctionIdentity    = "identity"
)

// PropertyValue is a layout or paint property: a constant, a function of
// zoom, a function of a feature property, or a small expression reading
// feature properties or feature state.
type PropertyValue struct {
	kind  valueKind
	value any
	fn    *function
	expr  *expression
}

type stop struct {
	in  any
	out any
}

type function struct {
	property   string
	typ        string
	base       float64
	stops      []stop
	def        any
	hasDefault bool
}

type expression struct {
	op   string
	key  string
	args []*PropertyValue
}

var expressionOps = map[string]bool{
	"get":           true,
	"feature-state": true,
	"coalesce":      true,
	"literal":       true,
	"to-number":     true,
	"to-string":     true,
}

// Constant returns a constant property value.
func Constant(v any) *PropertyValue {
	return &PropertyValue{kind: kindConstant, value: normalize(v)}
}

// ParsePropertyValue decodes a property value from JSON.
func ParsePropertyValue(raw json.RawMessage) (*PropertyValue, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return propertyFromJSON(v)
}

func propertyFromJSON(v any) (*PropertyValue, error) {
	switch t := v.(type) {
	case map[string]any:
		fn, err := parseFunction(t)
		if err != nil {
			return nil, err
		}
		kind := kindZoomFunction
		if fn.property != "" {
			kind = kindPropertyFunction
		}
		return &PropertyValue{kind: kind, fn: fn}, nil
	case []any:
		if len(t) > 0 {
			if op, ok := t[0].(string); ok && expressionOps[op] {
				expr, err := parseExpression(op, t[1:])
				if err != nil {
					return nil, err
				}
				if expr.op == "literal" {
					return Constant(expr.args[0].value), nil
				}
				return &PropertyValue{kind: kindExpression, expr: expr}, nil
			}
		}
		return Constant(t), nil
	default:
		return Constant(t), nil
	}
}

func parseExpression(op string, args []any) (*expression, error) {
	e := &expression{op: op}
	switch op {
	case "get", "feature-state":
		if len(args) != 1 {
			return nil, &ErrInvalidProperty{Reason: fmt.Sprintf("%q takes one argument", op)}
		}
		key, ok := args[0].(string)
		if !ok {
			return nil, &ErrInvalidProperty{Reason: fmt.Sprintf("%q key must be a string", op)}
		}
		e.key = key
	case "literal":
		if len(args) != 1 {
			return nil, &ErrInvalidProperty{Reason: "literal takes one argument"}
		}
		e.args = []*PropertyValue{Constant(args[0])}
	default:
		if len(args) == 0 {
			return nil, &ErrInvalidProperty{Reason: fmt.Sprintf("%q needs arguments", op)}
		}
		for _, a := range args {
			pv, err := propertyFromJSON(a)
			if err != nil {
				return nil, err
			}
			e.args = append(e.args, pv)
		}
	}
	return e, nil
}

func parseFunction(m map[string]any) (*function, error) {
	fn := &function{base: 1}
	if p, ok := m["property"].(string); ok {
		fn.property = p
	}
	if t, ok := m["type"].(string); ok {
		fn.typ = t
	}
	if b, ok := m["base"].(float64); ok {
		fn.base = b
	}
	if d, ok := m["default"]; ok {
		fn.def = normalize(d)
		fn.hasDefault = true
	}
	rawStops, _ := m["stops"].([]any)
	for _, rs := range rawStops {
		pair, ok := rs.([]any)
		if !ok || len(pair) != 2 {
			return nil, &ErrInvalidProperty{Reason: "function stops must be [input, output] pairs"}
		}
		if _, isObj := pair[0].(map[string]any); isObj {
			return nil, &ErrInvalidProperty{Reason: "zoom-and-property functions are not supported"}
		}
		fn.stops = append(fn.stops, stop{in: normalize(pair[0]), out: normalize(pair[1])})
	}

	if fn.typ == "" {
		fn.typ = defaultFunctionType(fn)
	}
	switch fn.typ {
	case FunctionExponential, FunctionInterval:
		if len(fn.stops) == 0 {
			return nil, &ErrInvalidProperty{Reason: fn.typ + " function needs stops"}
		}
		for _, s := range fn.stops {
			if _, ok := s.in.(float64); !ok {
				return nil, &ErrInvalidProperty{Reason: fn.typ + " function stop inputs must be numbers"}
			}
		}
		sort.SliceStable(fn.stops, func(i, j int) bool {
			return fn.stops[i].in.(float64) < fn.stops[j].in.(float64)
		})
	case FunctionCategorical:
		if len(fn.stops) == 0 {
			return nil, &ErrInvalidProperty{Reason: "categorical function needs stops"}
		}
	case FunctionIdentity:
		if fn.property == "" {
			return nil, &ErrInvalidProperty{Reason: "identity function needs a property"}
		}
	default:
		return nil, &ErrInvalidProperty{Reason: fmt.Sprintf("unknown function type %q", fn.typ)}
	}
	return fn, nil
}

func defaultFunctionType(fn *function) string {
	if len(fn.stops) == 0 {
		return FunctionIdentity
	}
	switch fn.stops[0].in.(type) {
	case string, bool:
		return FunctionCategorical
	}
	if interpolatable(fn.stops[0].out) {
		return FunctionExponential
	}
	return FunctionInterval
}

// IsFeatureConstant reports whether the value is the same for every feature.
func (p *PropertyValue) IsFeatureConstant() bool {
	return p.kind == kindConstant || p.kind == kindZoomFunction
}

// IsZoomConstant reports whether the value does not vary with zoom.
func (p *PropertyValue) IsZoomConstant() bool {
	return p.kind != kindZoomFunction
}

// IsStateDependent reports whether the value reads feature state.
func (p *PropertyValue) IsStateDependent() bool {
	if p.kind != kindExpression {
		return false
	}
	return p.expr.stateDependent()
}

func (e *expression) stateDependent() bool {
	if e.op == "feature-state" {
		return true
	}
	for _, a := range e.args {
		if a.IsStateDependent() {
			return true
		}
	}
	return false
}

// Evaluate computes the value at zoom for feature f with state. f and
// state may be nil. The second result is false when the value is
// undefined, in which case the property default applies.
func (p *PropertyValue) Evaluate(zoom float64, f vt.Feature, state FeatureState) (any, bool) {
	switch p.kind {
	case kindConstant:
		return p.value, p.value != nil
	case kindZoomFunction:
		return p.fn.evaluate(zoom)
	case kindPropertyFunction:
		in, ok := featureProperty(f, p.fn.property)
		if !ok {
			return p.fn.def, p.fn.hasDefault
		}
		if v, ok := p.fn.evaluate(in); ok {
			return v, true
		}
		return p.fn.def, p.fn.hasDefault
	case kindExpression:
		return p.expr.evaluate(zoom, f, state)
	}
	return nil, false
}

func (e *expression) evaluate(zoom float64, f vt.Feature, state FeatureState) (any, bool) {
	switch e.op {
	case "get":
		return featureProperty(f, e.key)
	case "feature-state":
		v, ok := state[e.key]
		return normalize(v), ok && v != nil
	case "coalesce":
		for _, a := range e.args {
			if v, ok := a.Evaluate(zoom, f, state); ok {
				return v, true
			}
		}
		return nil, false
	case "to-number":
		for _, a := range e.args {
			if v, ok := a.Evaluate(zoom, f, state); ok {
				if n, ok := toNumber(v); ok {
					return n, true
				}
			}
		}
		return 0.0, true
	case "to-string":
		v, ok := e.args[0].Evaluate(zoom, f, state)
		if !ok {
			return "", true
		}
		return toString(v), true
	}
	return nil, false
}

func (fn *function) evaluate(in any) (any, bool) {
	switch fn.typ {
	case FunctionIdentity:
		return in, in != nil
	case FunctionCategorical:
		for _, s := range fn.stops {
			if equalValues(s.in, in) {
				return s.out, true
			}
		}
		return nil, false
	}

	x, ok := in.(float64)
	if !ok {
		return nil, false
	}
	n := len(fn.stops)
	if x <= fn.stops[0].in.(float64) {
		return fn.stops[0].out, true
	}
	if x >= fn.stops[n-1].in.(float64) {
		return fn.stops[n-1].out, true
	}
	i := sort.Search(n, func(i int) bool { return fn.stops[i].in.(float64) > x }) - 1
	lower, upper := fn.stops[i], fn.stops[i+1]
	if fn.typ == FunctionInterval {
		return lower.out, true
	}
	t := interpolationFactor(x, fn.base, lower.in.(float64), upper.in.(float64))
	return interpolate(lower.out, upper.out, t), true
}

func interpolationFactor(input, base, lower, upper float64) float64 {
	difference := upper - lower
	progress := input - lower
	switch {
	case difference == 0:
		return 0
	case base == 1:
		return progress / difference
	default:
		return (math.Pow(base, progress) - 1) / (math.Pow(base, difference) - 1)
	}
}

func interpolatable(v any) bool {
	switch t := v.(type) {
	case float64:
		return true
	case []any:
		for _, e := range t {
			if _, ok := e.(float64); !ok {
				return false
			}
		}
		return len(t) > 0
	case string:
		_, err := ParseColor(t)
		return err == nil
	}
	return false
}

func interpolate(a, b any, t float64) any {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av + (bv-av)*t
		}
	case []any:
		bv, ok := b.([]any)
		if !ok || len(bv) != len(av) {
			return a
		}
		out := make([]any, len(av))
		for i := range av {
			out[i] = interpolate(av[i], bv[i], t)
		}
		return out
	case string:
		ca, errA := ParseColor(av)
		bs, _ := b.(string)
		cb, errB := ParseColor(bs)
		if errA == nil && errB == nil {
			return ca.Lerp(cb, t)
		}
	case Color:
		if cb, ok := b.(Color); ok {
			return av.Lerp(cb, t)
		}
	}
	return a
}

func featureProperty(f vt.Feature, key string) (any, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.Properties()[key]
	if !ok || v == nil {
		return nil, false
	}
	return normalize(v), true
}

// normalize folds the numeric types vector tiles produce into float64.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

func toNumber(v any) (float64, bool) {
	switch t := normalize(v).(type) {
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		var f float64
		if _, err := fmt.Sscan(t, &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toString(v any) string {
	switch t := normalize(v).(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

func equalValues(a, b any) bool {
	a, b = normalize(a), normalize(b)
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}
