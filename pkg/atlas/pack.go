package atlas

import (
	"image"
	"math"
	"sort"
)

// bin is a box to place; x and y are set by pack.
type bin struct {
	id   string
	rect image.Rectangle
	w, h int
}

// pack places boxes into a roughly square container, tallest first, and
// returns the container size. Free space is tracked as a list of
// rectangles, the last of which is unbounded below.
func pack(bins []*bin) (width, height int) {
	area, maxWidth := 0, 0
	for _, b := range bins {
		area += b.w * b.h
		maxWidth = max(maxWidth, b.w)
	}
	sort.SliceStable(bins, func(i, j int) bool { return bins[i].h > bins[j].h })

	startWidth := max(int(math.Ceil(math.Sqrt(float64(area)/0.95))), maxWidth)
	spaces := []image.Rectangle{image.Rect(0, 0, startWidth, math.MaxInt32)}

	for _, b := range bins {
		for i := len(spaces) - 1; i >= 0; i-- {
			space := spaces[i]
			sw, sh := space.Dx(), space.Dy()
			if b.w > sw || b.h > sh {
				continue
			}
			b.rect = image.Rect(space.Min.X, space.Min.Y, space.Min.X+b.w, space.Min.Y+b.h)
			width = max(width, b.rect.Max.X)
			height = max(height, b.rect.Max.Y)

			switch {
			case b.w == sw && b.h == sh:
				last := spaces[len(spaces)-1]
				spaces = spaces[:len(spaces)-1]
				if i < len(spaces) {
					spaces[i] = last
				}
			case b.h == sh:
				spaces[i].Min.X += b.w
			case b.w == sw:
				spaces[i].Min.Y += b.h
			default:
				spaces = append(spaces, image.Rect(space.Min.X+b.w, space.Min.Y, space.Max.X, space.Min.Y+b.h))
				spaces[i].Min.Y += b.h
			}
			break
		}
	}
	return width, height
}
