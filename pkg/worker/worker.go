// Package worker compiles decoded vector tiles into buckets.
//
// A Tile parses one tile at a time: overlapping Parse calls on the same
// Tile wait for each other. Glyphs and images the buckets need are
// requested from an Actor. ParseTiles runs many parses in parallel.
package worker

import (
	"context"
	"fmt"
	"image"
	"io"
	"runtime"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/geometry"
	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/bucket"
	"github.com/beetlebugorg/vtgeom/pkg/featureindex"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
)

// State is the parse state of a Tile.
type State uint8

const (
	Idle State = iota
	Parsing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Parsing:
		return "parsing"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// ImageKind selects what an image request is for.
type ImageKind string

const (
	Icons    ImageKind = "icons"
	Patterns ImageKind = "patterns"
)

// GlyphRequest asks for code points per font stack.
type GlyphRequest struct {
	Source string
	TileID tileid.OverscaledTileID
	Stacks map[string][]rune
}

// ImageRequest asks for named icons or patterns.
type ImageRequest struct {
	Source string
	TileID tileid.OverscaledTileID
	Kind   ImageKind
	Names  []string
}

// Actor resolves glyph and image dependencies, typically by asking the
// main thread.
type Actor interface {
	GetGlyphs(ctx context.Context, req GlyphRequest) (atlas.GlyphMap, error)
	GetImages(ctx context.Context, req ImageRequest) (atlas.ImageMap, error)
}

// Result is what a parse hands back to the main thread.
type Result struct {
	TileID tileid.OverscaledTileID
	// Buckets holds the non-empty buckets in population order.
	Buckets           []bucket.Bucket
	FeatureIndex      *featureindex.FeatureIndex
	CollisionBoxArray *array.CollisionBoxArray
	GlyphAtlasImage   *image.Alpha
	ImageAtlas        *atlas.ImageAtlas
}

// Options controls parsing and ParseTiles.
type Options struct {
	// Workers is the number of concurrent parses in ParseTiles. If 0,
	// defaults to runtime.NumCPU().
	Workers int

	// SkipErrors makes ParseTiles keep going when a tile fails. Failed tiles
	// are left out and their errors collected.
	SkipErrors bool

	// Progress is called after each tile ParseTiles finishes.
	Progress func(done, total int)

	// ErrorLog receives a line per failed tile.
	ErrorLog io.Writer

	// EarcutMaxRings caps the rings per polygon triangulation.
	EarcutMaxRings int

	// Layouter places symbols. If nil, symbol buckets stay empty.
	Layouter bucket.SymbolLayouter
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Workers:        runtime.NumCPU(),
		SkipErrors:     true,
		EarcutMaxRings: geometry.DefaultMaxRings,
		Layouter:       bucket.PointLayouter{},
	}
}
