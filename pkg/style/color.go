package style

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a non-premultiplied RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float64
}

var namedColors = map[string]Color{
	"transparent": {0, 0, 0, 0},
	"black":       {0, 0, 0, 1},
	"white":       {1, 1, 1, 1},
	"red":         {1, 0, 0, 1},
	"green":       {0, 128.0 / 255, 0, 1},
	"blue":        {0, 0, 1, 1},
	"yellow":      {1, 1, 0, 1},
	"gray":        {128.0 / 255, 128.0 / 255, 128.0 / 255, 1},
	"grey":        {128.0 / 255, 128.0 / 255, 128.0 / 255, 1},
}

// ParseColor parses #rgb, #rgba, #rrggbb, #rrggbbaa, rgb(), rgba() and a
// few named colors.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	if strings.HasPrefix(s, "#") {
		return parseHex(s[1:])
	}
	if args, ok := functionArgs(s, "rgba"); ok {
		return parseRGB(args, true)
	}
	if args, ok := functionArgs(s, "rgb"); ok {
		return parseRGB(args, false)
	}
	return Color{}, fmt.Errorf("unsupported color %q", s)
}

func functionArgs(s, name string) ([]string, bool) {
	if !strings.HasPrefix(s, name+"(") || !strings.HasSuffix(s, ")") {
		return nil, false
	}
	inner := s[len(name)+1 : len(s)-1]
	parts := strings.Split(inner, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, true
}

func parseHex(h string) (Color, error) {
	switch len(h) {
	case 3, 4:
		var expanded strings.Builder
		for _, c := range h {
			expanded.WriteRune(c)
			expanded.WriteRune(c)
		}
		h = expanded.String()
	case 6, 8:
	default:
		return Color{}, fmt.Errorf("invalid hex color #%s", h)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid hex color #%s: %w", h, err)
	}
	if len(h) == 6 {
		v = v<<8 | 0xff
	}
	return Color{
		R: float64(v>>24&0xff) / 255,
		G: float64(v>>16&0xff) / 255,
		B: float64(v>>8&0xff) / 255,
		A: float64(v&0xff) / 255,
	}, nil
}

func parseRGB(args []string, alpha bool) (Color, error) {
	want := 3
	if alpha {
		want = 4
	}
	if len(args) != want {
		return Color{}, fmt.Errorf("expected %d color components, got %d", want, len(args))
	}
	var c [4]float64
	c[3] = 1
	for i, a := range args {
		v, err := strconv.ParseFloat(strings.TrimSuffix(a, "%"), 64)
		if err != nil {
			return Color{}, fmt.Errorf("color component %q: %w", a, err)
		}
		switch {
		case i == 3:
			c[i] = clamp01(v)
		case strings.HasSuffix(a, "%"):
			c[i] = clamp01(v / 100)
		default:
			c[i] = clamp01(v / 255)
		}
	}
	return Color{R: c[0], G: c[1], B: c[2], A: c[3]}, nil
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// Lerp interpolates linearly between c and o.
func (c Color) Lerp(o Color, t float64) Color {
	return Color{
		R: c.R + (o.R-c.R)*t,
		G: c.G + (o.G-c.G)*t,
		B: c.B + (o.B-c.B)*t,
		A: c.A + (o.A-c.A)*t,
	}
}

// Premultiplied returns the color with RGB scaled by alpha, as float32
// components ready for a paint attribute.
func (c Color) Premultiplied() [4]float32 {
	return [4]float32{float32(c.R * c.A), float32(c.G * c.A), float32(c.B * c.A), float32(c.A)}
}

func toColor(v any) (Color, bool) {
	switch t := v.(type) {
	case Color:
		return t, true
	case string:
		c, err := ParseColor(t)
		return c, err == nil
	}
	return Color{}, false
}
