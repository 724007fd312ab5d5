package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/logging"
	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/bucket"
	"github.com/beetlebugorg/vtgeom/pkg/featureindex"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

// TileParameters identify a tile to parse.
type TileParameters struct {
	UID    string
	TileID tileid.OverscaledTileID
	Source string
	// Zoom is the zoom styles are evaluated at. If 0, the tile's
	// overscaled zoom is used.
	Zoom      float64
	PromoteID featureindex.PromoteID
}

// Tile parses the data of one tile into buckets.
type Tile struct {
	TileParameters

	opts Options
	// gate admits one parse at a time.
	gate chan struct{}

	mu    sync.Mutex
	state State

	// data and raw are only touched while holding the gate.
	data *vt.VectorTile
	raw  []byte
}

// NewTile returns an idle tile.
func NewTile(p TileParameters, opts Options) *Tile {
	return &Tile{TileParameters: p, opts: opts, gate: make(chan struct{}, 1)}
}

// State returns the parse state. A failed parse leaves the tile Parsing.
func (t *Tile) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tile) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Tile) zoom() float64 {
	if t.Zoom > 0 {
		return t.Zoom
	}
	return float64(t.TileID.OverscaledZ)
}

// Parse builds buckets from data. raw is the encoded tile, kept by the
// feature index for later queries; it may be nil. A Parse that overlaps
// another on the same tile waits for it to finish first. Nil data yields
// a nil Result.
func (t *Tile) Parse(ctx context.Context, data *vt.VectorTile, raw []byte, layers *style.LayerIndex, actor Actor) (*Result, error) {
	return t.run(ctx, layers, actor, func() {
		t.data, t.raw = data, raw
	})
}

// Reparse parses the tile's last data again, for a changed style.
func (t *Tile) Reparse(ctx context.Context, layers *style.LayerIndex, actor Actor) (*Result, error) {
	return t.run(ctx, layers, actor, nil)
}

func (t *Tile) run(ctx context.Context, layers *style.LayerIndex, actor Actor, set func()) (*Result, error) {
	select {
	case t.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-t.gate }()

	if set != nil {
		set()
	}
	t.setState(Parsing)
	if t.data == nil {
		t.setState(Done)
		return nil, nil
	}

	start := time.Now()
	res, err := t.parse(ctx, layers, actor)
	if err != nil {
		return nil, fmt.Errorf("parse tile %s: %w", t.TileID, err)
	}
	t.setState(Done)

	logging.Logger().Debug("parsed tile",
		"tile", t.TileID.String(),
		"source", t.Source,
		"buckets", len(res.Buckets),
		"duration", time.Since(start))
	return res, nil
}

func (t *Tile) parse(ctx context.Context, layers *style.LayerIndex, actor Actor) (*Result, error) {
	fi := featureindex.New(t.TileID, t.PromoteID)
	fi.SetVectorTile(t.data, t.raw)
	coder := vt.NewTileCoder(t.data)

	opts := bucket.NewOptions(fi)
	if t.opts.EarcutMaxRings > 0 {
		opts.EarcutMaxRings = t.opts.EarcutMaxRings
	}

	zoom := t.zoom()
	params := style.EvaluationParameters{Zoom: zoom}
	var buckets []bucket.Bucket

	for _, sourceLayer := range layers.SourceLayers(t.Source) {
		layer := t.data.Layer(sourceLayer)
		if layer == nil {
			continue
		}
		sourceLayerIndex, _ := coder.Encode(sourceLayer)

		features := make([]bucket.IndexedFeature, layer.Len())
		for i := range features {
			f := layer.Feature(i)
			features[i] = bucket.IndexedFeature{
				Feature:          f,
				ID:               fi.FeatureID(f, sourceLayer),
				Index:            i,
				SourceLayerIndex: sourceLayerIndex,
			}
		}

		for _, family := range layers.Families(t.Source, sourceLayer) {
			if family.Owner().IsHidden(zoom) {
				continue
			}
			evaluated := make([]*style.Evaluated, len(family))
			for i, l := range family {
				evaluated[i] = l.Evaluate(params)
			}

			b, err := bucket.New(bucket.Parameters{
				Index:           len(fi.BucketLayerIDs()),
				Layers:          evaluated,
				Zoom:            zoom,
				OverscaleFactor: t.TileID.OverscaleFactor(),
				SourceID:        t.Source,
			})
			if err != nil {
				return nil, fmt.Errorf("layer %s: %w", family.Owner().ID, err)
			}
			if b == nil {
				continue
			}
			if err := b.Populate(features, opts); err != nil {
				return nil, fmt.Errorf("populate layer %s: %w", family.Owner().ID, err)
			}
			fi.AddBucketLayerIDs(family.IDs())
			buckets = append(buckets, b)
		}
	}

	glyphs, icons, patterns, err := t.resolveDependencies(ctx, opts, actor)
	if err != nil {
		return nil, err
	}
	glyphAtlas := atlas.NewGlyphAtlas(glyphs)
	imageAtlas := atlas.NewImageAtlas(icons, patterns)
	boxes := array.NewCollisionBoxArray()

	for _, b := range buckets {
		switch b := b.(type) {
		case *bucket.SymbolBucket:
			if err := b.Layout(t.opts.Layouter, glyphAtlas.Positions, imageAtlas.IconPositions, boxes); err != nil {
				return nil, err
			}
		case bucket.PatternBucket:
			if b.HasPattern() {
				if err := b.AddFeatures(opts, imageAtlas.PatternPositions); err != nil {
					return nil, fmt.Errorf("add pattern features for %s: %w", b.LayerIDs()[0], err)
				}
			}
		}
	}

	nonEmpty := buckets[:0]
	for _, b := range buckets {
		if !b.IsEmpty() {
			nonEmpty = append(nonEmpty, b)
		}
	}

	return &Result{
		TileID:            t.TileID,
		Buckets:           nonEmpty,
		FeatureIndex:      fi,
		CollisionBoxArray: boxes,
		GlyphAtlasImage:   glyphAtlas.Image,
		ImageAtlas:        imageAtlas,
	}, nil
}

// resolveDependencies requests glyphs, icons and patterns concurrently.
// Empty requests are skipped. The first error to arrive is returned.
func (t *Tile) resolveDependencies(ctx context.Context, opts *bucket.Options, actor Actor) (atlas.GlyphMap, atlas.ImageMap, atlas.ImageMap, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error

		glyphs          atlas.GlyphMap
		icons, patterns atlas.ImageMap
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	if actor == nil {
		return glyphs, icons, patterns, nil
	}

	start := time.Now()
	if len(opts.GlyphDependencies) > 0 {
		req := GlyphRequest{Source: t.Source, TileID: t.TileID, Stacks: make(map[string][]rune, len(opts.GlyphDependencies))}
		for stack, set := range opts.GlyphDependencies {
			req.Stacks[stack] = sortedRunes(set)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := actor.GetGlyphs(ctx, req)
			if err != nil {
				fail(fmt.Errorf("get glyphs: %w", err))
				return
			}
			glyphs = m
		}()
	}

	requestImages := func(kind ImageKind, names map[string]struct{}, out *atlas.ImageMap) {
		if len(names) == 0 {
			return
		}
		req := ImageRequest{Source: t.Source, TileID: t.TileID, Kind: kind, Names: sortedNames(names)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := actor.GetImages(ctx, req)
			if err != nil {
				fail(fmt.Errorf("get %s: %w", kind, err))
				return
			}
			*out = m
		}()
	}
	requestImages(Icons, opts.IconDependencies, &icons)
	requestImages(Patterns, opts.PatternDependencies, &patterns)

	wg.Wait()
	if firstErr != nil {
		return nil, nil, nil, firstErr
	}

	logging.Logger().Debug("resolved dependencies",
		"tile", t.TileID.String(),
		"glyph_stacks", len(opts.GlyphDependencies),
		"icons", len(opts.IconDependencies),
		"patterns", len(opts.PatternDependencies),
		"duration", time.Since(start))
	return glyphs, icons, patterns, nil
}

func sortedRunes(set map[rune]struct{}) []rune {
	out := make([]rune, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
