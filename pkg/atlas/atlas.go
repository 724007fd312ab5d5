// Package atlas packs the glyph and image bitmaps a tile depends on into
// two textures and records where each one landed.
package atlas

import (
	"image"
	"sort"

	xdraw "golang.org/x/image/draw"
)

// Padding is the empty border kept around every packed bitmap.
const Padding = 1

// GlyphMetrics are the layout metrics of one glyph, in pixels.
type GlyphMetrics struct {
	Width, Height int
	Left, Top     int
	Advance       int
}

// Glyph is a rasterized glyph. Bitmap may be nil for whitespace.
type Glyph struct {
	ID      rune
	Bitmap  *image.Alpha
	Metrics GlyphMetrics
}

// GlyphMap holds glyphs by font stack and code point. A nil entry marks a
// glyph the font stack does not have.
type GlyphMap map[string]map[rune]*Glyph

// GlyphPosition locates a glyph in the glyph atlas.
type GlyphPosition struct {
	Rect    image.Rectangle
	Metrics GlyphMetrics
}

// GlyphPositions holds glyph positions by font stack and code point.
type GlyphPositions map[string]map[rune]GlyphPosition

// GlyphAtlas is the packed glyph texture of one tile.
type GlyphAtlas struct {
	Image     *image.Alpha
	Positions GlyphPositions
}

// NewGlyphAtlas packs every glyph with a non-empty bitmap. Metrics of empty
// glyphs are still recorded so layout can advance over them.
func NewGlyphAtlas(stacks GlyphMap) *GlyphAtlas {
	positions := make(GlyphPositions, len(stacks))
	var (
		bins   []*bin
		owners = make(map[*bin]*Glyph)
		stack  = make(map[*bin]string)
	)
	for _, name := range sortedKeys(stacks) {
		glyphs := stacks[name]
		stackPositions := make(map[rune]GlyphPosition, len(glyphs))
		positions[name] = stackPositions

		ids := make([]rune, 0, len(glyphs))
		for id := range glyphs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			g := glyphs[id]
			if g == nil {
				continue
			}
			if g.Bitmap == nil || g.Bitmap.Rect.Empty() {
				stackPositions[id] = GlyphPosition{Metrics: g.Metrics}
				continue
			}
			b := &bin{w: g.Bitmap.Rect.Dx() + 2*Padding, h: g.Bitmap.Rect.Dy() + 2*Padding}
			bins = append(bins, b)
			owners[b] = g
			stack[b] = name
		}
	}

	w, h := pack(bins)
	img := image.NewAlpha(image.Rect(0, 0, max(w, 1), max(h, 1)))
	for _, b := range bins {
		g := owners[b]
		xdraw.Copy(img, b.rect.Min.Add(image.Pt(Padding, Padding)), g.Bitmap, g.Bitmap.Rect, xdraw.Src, nil)
		positions[stack[b]][g.ID] = GlyphPosition{Rect: b.rect, Metrics: g.Metrics}
	}
	return &GlyphAtlas{Image: img, Positions: positions}
}

// Image is a style image: an icon or a fill pattern.
type Image struct {
	Data       *image.RGBA
	PixelRatio float64
	SDF        bool
	Version    int
}

// ImageMap holds images by id.
type ImageMap map[string]*Image

// ImagePosition locates an image in the image atlas. PaddedRect includes
// the padding border.
type ImagePosition struct {
	PaddedRect image.Rectangle
	PixelRatio float64
	Version    int
}

// TL is the top-left corner of the image content.
func (p ImagePosition) TL() [2]float32 {
	return [2]float32{float32(p.PaddedRect.Min.X + Padding), float32(p.PaddedRect.Min.Y + Padding)}
}

// BR is the bottom-right corner of the image content.
func (p ImagePosition) BR() [2]float32 {
	return [2]float32{float32(p.PaddedRect.Max.X - Padding), float32(p.PaddedRect.Max.Y - Padding)}
}

// TLBR is TL followed by BR.
func (p ImagePosition) TLBR() [4]float32 {
	tl, br := p.TL(), p.BR()
	return [4]float32{tl[0], tl[1], br[0], br[1]}
}

// DisplaySize is the image size in CSS pixels.
func (p ImagePosition) DisplaySize() [2]float64 {
	ratio := p.PixelRatio
	if ratio == 0 {
		ratio = 1
	}
	return [2]float64{
		float64(p.PaddedRect.Dx()-2*Padding) / ratio,
		float64(p.PaddedRect.Dy()-2*Padding) / ratio,
	}
}

// Positions holds image positions by id.
type Positions map[string]ImagePosition

// ImageAtlas is the packed icon and pattern texture of one tile.
type ImageAtlas struct {
	Image            *image.RGBA
	IconPositions    Positions
	PatternPositions Positions
}

// NewImageAtlas packs icons and patterns into one texture. Patterns get a
// border copied from their opposite edges so they tile without seams.
func NewImageAtlas(icons, patterns ImageMap) *ImageAtlas {
	a := &ImageAtlas{IconPositions: make(Positions), PatternPositions: make(Positions)}
	var bins []*bin
	iconBins := addImages(icons, &bins)
	patternBins := addImages(patterns, &bins)

	w, h := pack(bins)
	a.Image = image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))

	for _, b := range iconBins {
		src := icons[b.id].Data
		xdraw.Copy(a.Image, b.rect.Min.Add(image.Pt(Padding, Padding)), src, src.Rect, xdraw.Src, nil)
		a.IconPositions[b.id] = position(b, icons[b.id])
	}
	for _, b := range patternBins {
		src := patterns[b.id].Data
		copyWrapped(a.Image, b.rect.Min.Add(image.Pt(Padding, Padding)), src)
		a.PatternPositions[b.id] = position(b, patterns[b.id])
	}
	return a
}

func addImages(images ImageMap, bins *[]*bin) []*bin {
	out := make([]*bin, 0, len(images))
	for _, id := range sortedKeys(images) {
		img := images[id]
		if img == nil || img.Data == nil {
			continue
		}
		b := &bin{id: id, w: img.Data.Rect.Dx() + 2*Padding, h: img.Data.Rect.Dy() + 2*Padding}
		*bins = append(*bins, b)
		out = append(out, b)
	}
	return out
}

func position(b *bin, img *Image) ImagePosition {
	ratio := img.PixelRatio
	if ratio == 0 {
		ratio = 1
	}
	return ImagePosition{PaddedRect: b.rect, PixelRatio: ratio, Version: img.Version}
}

// copyWrapped draws src at dp and fills the one pixel border around it
// with the opposite edge rows and columns.
func copyWrapped(dst *image.RGBA, dp image.Point, src *image.RGBA) {
	r := src.Rect
	w, h := r.Dx(), r.Dy()
	xdraw.Copy(dst, dp, src, r, xdraw.Src, nil)
	// top border from the last row, bottom border from the first
	xdraw.Copy(dst, dp.Add(image.Pt(0, -1)), src, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), xdraw.Src, nil)
	xdraw.Copy(dst, dp.Add(image.Pt(0, h)), src, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), xdraw.Src, nil)
	// left border from the last column, right border from the first
	xdraw.Copy(dst, dp.Add(image.Pt(-1, 0)), src, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), xdraw.Src, nil)
	xdraw.Copy(dst, dp.Add(image.Pt(w, 0)), src, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), xdraw.Src, nil)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
