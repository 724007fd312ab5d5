package atlas

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPackNoOverlap(t *testing.T) {
	var bins []*bin
	for i := 1; i <= 20; i++ {
		bins = append(bins, &bin{w: 3 + i%7, h: 2 + i%5})
	}
	w, h := pack(bins)

	bounds := image.Rect(0, 0, w, h)
	for i, a := range bins {
		require.True(t, a.rect.In(bounds), "bin %d %v outside %v", i, a.rect, bounds)
		assert.Equal(t, a.w, a.rect.Dx())
		assert.Equal(t, a.h, a.rect.Dy())
		for _, b := range bins[i+1:] {
			assert.False(t, a.rect.Overlaps(b.rect), "%v overlaps %v", a.rect, b.rect)
		}
	}
}

func TestPackEmpty(t *testing.T) {
	w, h := pack(nil)
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestGlyphAtlas(t *testing.T) {
	bitmap := image.NewAlpha(image.Rect(0, 0, 4, 6))
	bitmap.SetAlpha(1, 1, color.Alpha{A: 200})

	a := NewGlyphAtlas(GlyphMap{
		"Open Sans Regular": {
			'A': {ID: 'A', Bitmap: bitmap, Metrics: GlyphMetrics{Width: 4, Height: 6, Advance: 5}},
			' ': {ID: ' ', Metrics: GlyphMetrics{Advance: 3}},
			'B': nil,
		},
	})

	stack := a.Positions["Open Sans Regular"]
	require.Contains(t, stack, 'A')
	assert.Equal(t, 6, stack['A'].Rect.Dx())
	assert.Equal(t, 8, stack['A'].Rect.Dy())
	assert.Equal(t, 3, stack[' '].Metrics.Advance)
	assert.True(t, stack[' '].Rect.Empty())
	assert.NotContains(t, stack, 'B')

	origin := stack['A'].Rect.Min
	assert.Equal(t, uint8(200), a.Image.AlphaAt(origin.X+Padding+1, origin.Y+Padding+1).A)
	assert.Equal(t, uint8(0), a.Image.AlphaAt(origin.X, origin.Y).A)
}

func TestImageAtlas(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	pattern := solid(2, 2, red)
	pattern.SetRGBA(1, 1, color.RGBA{B: 255, A: 255})

	a := NewImageAtlas(
		ImageMap{"marker": {Data: solid(8, 8, red), PixelRatio: 2}},
		ImageMap{"stripes": {Data: pattern, PixelRatio: 1}, "missing": nil},
	)

	marker := a.IconPositions["marker"]
	assert.Equal(t, [2]float64{4, 4}, marker.DisplaySize())
	tl, br := marker.TL(), marker.BR()
	assert.Equal(t, float32(8), br[0]-tl[0])

	stripes, ok := a.PatternPositions["stripes"]
	require.True(t, ok)
	assert.NotContains(t, a.PatternPositions, "missing")
	assert.False(t, stripes.PaddedRect.Overlaps(marker.PaddedRect))

	// The border left of the content repeats the last column.
	p := stripes.PaddedRect.Min
	assert.Equal(t, color.RGBA{B: 255, A: 255}, a.Image.RGBAAt(p.X, p.Y+Padding+1))
	assert.Equal(t, red, a.Image.RGBAAt(p.X+Padding, p.Y+Padding))
}

func TestImageAtlasEmpty(t *testing.T) {
	a := NewImageAtlas(nil, nil)
	assert.Equal(t, image.Rect(0, 0, 1, 1), a.Image.Rect)
	assert.Empty(t, a.IconPositions)
}
