package main

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/beetlebugorg/vtgeom/internal/logging"
	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/worker"
)

// localActor answers dependency requests without a renderer: glyphs come
// from a built-in bitmap font for every font stack, images from PNG files
// in a directory.
type localActor struct {
	face    font.Face
	sprites string
}

func newLocalActor(sprites string) *localActor {
	return &localActor{face: basicfont.Face7x13, sprites: sprites}
}

func (a *localActor) GetGlyphs(ctx context.Context, req worker.GlyphRequest) (atlas.GlyphMap, error) {
	out := make(atlas.GlyphMap, len(req.Stacks))
	for stack, runes := range req.Stacks {
		glyphs := make(map[rune]*atlas.Glyph, len(runes))
		for _, r := range runes {
			glyphs[r] = a.glyph(r)
		}
		out[stack] = glyphs
	}
	return out, nil
}

// glyph rasterizes r with the dot at the origin. It returns nil for runes
// the face lacks.
func (a *localActor) glyph(r rune) *atlas.Glyph {
	dr, mask, maskp, advance, ok := a.face.Glyph(fixed.Point26_6{}, r)
	if !ok {
		return nil
	}
	g := &atlas.Glyph{
		ID: r,
		Metrics: atlas.GlyphMetrics{
			Width:   dr.Dx(),
			Height:  dr.Dy(),
			Left:    dr.Min.X,
			Top:     -dr.Min.Y,
			Advance: advance.Round(),
		},
	}
	if !dr.Empty() {
		bitmap := image.NewAlpha(image.Rect(0, 0, dr.Dx(), dr.Dy()))
		xdraw.Draw(bitmap, bitmap.Bounds(), mask, maskp, xdraw.Src)
		g.Bitmap = bitmap
	}
	return g
}

func (a *localActor) GetImages(ctx context.Context, req worker.ImageRequest) (atlas.ImageMap, error) {
	out := make(atlas.ImageMap, len(req.Names))
	if a.sprites == "" {
		return out, nil
	}
	for _, name := range req.Names {
		img, err := loadPNG(filepath.Join(a.sprites, name+".png"))
		if errors.Is(err, fs.ErrNotExist) {
			logging.WarnOnce("Image \"" + name + "\" could not be loaded.")
			continue
		}
		if err != nil {
			return nil, err
		}
		out[name] = &atlas.Image{Data: img, PixelRatio: 1}
	}
	return out, nil
}

func loadPNG(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return nil, err
	}
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, xdraw.Src)
	return rgba, nil
}
