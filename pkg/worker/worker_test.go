package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/bucket"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

func layerIndex(t *testing.T, layersJSON string) *style.LayerIndex {
	t.Helper()
	s, err := style.Parse([]byte(`{"version": 8, "layers": [` + layersJSON + `]}`))
	require.NoError(t, err)
	return s.LayerIndex()
}

func square(x, y, size int) vt.Ring {
	return vt.Ring{{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size}, {X: x, Y: y}}
}

func uid(v uint64) *uint64 { return &v }

func waterTile() *vt.VectorTile {
	return vt.NewMemoryTile(
		&vt.MemoryLayer{LayerName: "water", ExtentSize: 8192, FeatureSlice: []*vt.MemoryFeature{
			{GeomType: vt.Polygon, FeatureID: uid(1), Props: map[string]any{"class": "lake"}, Rings: []vt.Ring{square(100, 100, 200)}},
		}},
		&vt.MemoryLayer{LayerName: "poi", ExtentSize: 8192, FeatureSlice: []*vt.MemoryFeature{
			{GeomType: vt.Point, FeatureID: uid(2), Props: map[string]any{"name": "dock", "kind": "harbor"},
				Rings: []vt.Ring{{{X: 500, Y: 500}}}},
		}},
	)
}

func params() TileParameters {
	return TileParameters{UID: "t1", TileID: tileid.MustOverscaled(14, 0, 14, 8000, 5000), Source: "osm"}
}

// fakeActor serves solid glyphs and images for whatever is asked.
type fakeActor struct {
	mu       sync.Mutex
	glyphs   []GlyphRequest
	images   []ImageRequest
	glyphErr error
	imageErr error
	// block, when set, holds GetGlyphs until it is closed.
	block   chan struct{}
	entered chan struct{}
}

func (a *fakeActor) GetGlyphs(ctx context.Context, req GlyphRequest) (atlas.GlyphMap, error) {
	a.mu.Lock()
	a.glyphs = append(a.glyphs, req)
	a.mu.Unlock()
	if a.entered != nil {
		a.entered <- struct{}{}
	}
	if a.block != nil {
		<-a.block
	}
	if a.glyphErr != nil {
		return nil, a.glyphErr
	}
	out := atlas.GlyphMap{}
	for stack, runes := range req.Stacks {
		out[stack] = map[rune]*atlas.Glyph{}
		for _, r := range runes {
			out[stack][r] = &atlas.Glyph{ID: r, Bitmap: image.NewAlpha(image.Rect(0, 0, 6, 8)),
				Metrics: atlas.GlyphMetrics{Width: 6, Height: 8, Advance: 12}}
		}
	}
	return out, nil
}

func (a *fakeActor) GetImages(ctx context.Context, req ImageRequest) (atlas.ImageMap, error) {
	a.mu.Lock()
	a.images = append(a.images, req)
	a.mu.Unlock()
	if a.imageErr != nil {
		return nil, a.imageErr
	}
	out := atlas.ImageMap{}
	for _, name := range req.Names {
		out[name] = &atlas.Image{Data: image.NewRGBA(image.Rect(0, 0, 8, 8)), PixelRatio: 1}
	}
	return out, nil
}

func (a *fakeActor) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.glyphs) + len(a.images)
}

func TestParseSingleFill(t *testing.T) {
	layers := layerIndex(t, `{"id": "lakes", "type": "fill", "source": "osm", "source-layer": "water"}`)
	actor := &fakeActor{}

	tile := NewTile(params(), DefaultOptions())
	assert.Equal(t, Idle, tile.State())

	res, err := tile.Parse(context.Background(), waterTile(), nil, layers, actor)
	require.NoError(t, err)
	assert.Equal(t, Done, tile.State())

	require.Len(t, res.Buckets, 1)
	assert.Equal(t, []string{"lakes"}, res.Buckets[0].LayerIDs())
	assert.Equal(t, style.Fill, res.Buckets[0].Kind())
	assert.Equal(t, [][]string{{"lakes"}}, res.FeatureIndex.BucketLayerIDs())
	assert.True(t, res.FeatureIndex.HasLayer("lakes"))
	assert.Zero(t, actor.calls(), "no dependencies, no requests")
	assert.Zero(t, res.CollisionBoxArray.Len())
}

func TestParseSkipsHiddenAndDropsEmpty(t *testing.T) {
	layers := layerIndex(t, `
	  {"id": "lakes", "type": "fill", "source": "osm", "source-layer": "water"},
	  {"id": "detail", "type": "fill", "source": "osm", "source-layer": "water", "minzoom": 16},
	  {"id": "rivers", "type": "line", "source": "osm", "source-layer": "water", "filter": ["==", "class", "river"]},
	  {"id": "other", "type": "fill", "source": "elsewhere", "source-layer": "water"},
	  {"id": "missing", "type": "fill", "source": "osm", "source-layer": "landuse"}`)

	res, err := NewTile(params(), DefaultOptions()).Parse(context.Background(), waterTile(), nil, layers, nil)
	require.NoError(t, err)

	require.Len(t, res.Buckets, 1)
	assert.Equal(t, []string{"lakes"}, res.Buckets[0].LayerIDs())
	// The empty line bucket keeps its index.
	assert.Equal(t, [][]string{{"lakes"}, {"rivers"}}, res.FeatureIndex.BucketLayerIDs())
}

func TestParseFamiliesShareABucket(t *testing.T) {
	layers := layerIndex(t, `
	  {"id": "lakes", "type": "fill", "source": "osm", "source-layer": "water", "paint": {"fill-color": "#00f"}},
	  {"id": "lakes-tint", "type": "fill", "source": "osm", "source-layer": "water", "paint": {"fill-color": "#0ff"}}`)

	res, err := NewTile(params(), DefaultOptions()).Parse(context.Background(), waterTile(), nil, layers, nil)
	require.NoError(t, err)
	require.Len(t, res.Buckets, 1)
	assert.Equal(t, []string{"lakes", "lakes-tint"}, res.Buckets[0].LayerIDs())
}

func TestParseResolvesDependencies(t *testing.T) {
	layers := layerIndex(t, `
	  {"id": "lakes", "type": "fill", "source": "osm", "source-layer": "water", "paint": {"fill-pattern": "waves"}},
	  {"id": "labels", "type": "symbol", "source": "osm", "source-layer": "poi",
	   "layout": {"text-field": "{name}", "text-font": ["Noto Sans Regular"], "icon-image": "{kind}"}}`)
	actor := &fakeActor{}

	res, err := NewTile(params(), DefaultOptions()).Parse(context.Background(), waterTile(), nil, layers, actor)
	require.NoError(t, err)

	require.Len(t, actor.glyphs, 1)
	assert.Equal(t, map[string][]rune{"Noto Sans Regular": {'c', 'd', 'k', 'o'}}, actor.glyphs[0].Stacks)
	require.Len(t, actor.images, 2)
	byKind := map[ImageKind][]string{}
	for _, req := range actor.images {
		byKind[req.Kind] = req.Names
	}
	assert.Equal(t, map[ImageKind][]string{Icons: {"harbor"}, Patterns: {"waves"}}, byKind)

	require.Len(t, res.Buckets, 2)
	fill := res.Buckets[0].(*bucket.FillBucket)
	assert.Equal(t, bucket.Finalized, fill.State())
	assert.False(t, fill.IsEmpty())

	symbols := res.Buckets[1].(*bucket.SymbolBucket)
	assert.Equal(t, bucket.Finalized, symbols.State())
	assert.Equal(t, 1, res.CollisionBoxArray.Len())
	assert.Equal(t, uint16(1), res.CollisionBoxArray.At(0).BucketIndex)

	assert.Contains(t, res.ImageAtlas.IconPositions, "harbor")
	assert.Contains(t, res.ImageAtlas.PatternPositions, "waves")
	assert.Greater(t, res.GlyphAtlasImage.Rect.Dx(), 1)
}

func TestParseDependencyError(t *testing.T) {
	layers := layerIndex(t, `{"id": "labels", "type": "symbol", "source": "osm", "source-layer": "poi",
	  "layout": {"text-field": "{name}", "icon-image": "{kind}"}}`)
	boom := errors.New("glyph server down")
	actor := &fakeActor{glyphErr: boom}

	tile := NewTile(params(), DefaultOptions())
	res, err := tile.Parse(context.Background(), waterTile(), nil, layers, actor)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.Equal(t, Parsing, tile.State())
}

func TestParseNilData(t *testing.T) {
	tile := NewTile(params(), DefaultOptions())
	res, err := tile.Parse(context.Background(), nil, nil, layerIndex(t, ``), nil)
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, Done, tile.State())
}

func TestParseIsSerialized(t *testing.T) {
	layers := layerIndex(t, `{"id": "labels", "type": "symbol", "source": "osm", "source-layer": "poi",
	  "layout": {"text-field": "{name}"}}`)
	actor := &fakeActor{block: make(chan struct{}), entered: make(chan struct{}, 2)}
	tile := NewTile(params(), DefaultOptions())

	var wg sync.WaitGroup
	var finished atomic.Int32
	parse := func() {
		defer wg.Done()
		_, err := tile.Parse(context.Background(), waterTile(), nil, layers, actor)
		assert.NoError(t, err)
		finished.Add(1)
	}

	wg.Add(1)
	go parse()
	<-actor.entered

	wg.Add(1)
	go parse()
	assert.Never(t, func() bool { return actor.calls() > 1 }, 50*time.Millisecond, 5*time.Millisecond,
		"second parse must wait for the first")
	assert.Equal(t, Parsing, tile.State())

	close(actor.block)
	wg.Wait()
	assert.Equal(t, int32(2), finished.Load())
	assert.Equal(t, 2, actor.calls())
	assert.Equal(t, Done, tile.State())
}

func TestParseWaitHonorsContext(t *testing.T) {
	layers := layerIndex(t, `{"id": "labels", "type": "symbol", "source": "osm", "source-layer": "poi",
	  "layout": {"text-field": "{name}"}}`)
	actor := &fakeActor{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	tile := NewTile(params(), DefaultOptions())

	go tile.Parse(context.Background(), waterTile(), nil, layers, actor)
	<-actor.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tile.Parse(ctx, waterTile(), nil, layers, actor)
	assert.ErrorIs(t, err, context.Canceled)
	close(actor.block)
}

func encoded(t *testing.T, tile *vt.VectorTile) []byte {
	t.Helper()
	raw, err := vt.Encode(tile)
	require.NoError(t, err)
	return raw
}

func TestSourceLifecycle(t *testing.T) {
	layers := layerIndex(t, `{"id": "lakes", "type": "fill", "source": "osm", "source-layer": "water"}`)
	raw := encoded(t, waterTile())
	load := func(ctx context.Context, id tileid.OverscaledTileID) ([]byte, error) {
		if id.Canonical.X == 0 {
			return nil, nil
		}
		return raw, nil
	}
	src := NewSource("osm", layers, nil, load, DefaultOptions())

	res, err := src.LoadTile(context.Background(), params())
	require.NoError(t, err)
	require.Len(t, res.Buckets, 1)
	assert.Equal(t, raw, res.FeatureIndex.RawTileData())
	assert.True(t, src.Loaded("t1"))

	src.SetLayers(layerIndex(t, `
	  {"id": "lakes", "type": "fill", "source": "osm", "source-layer": "water"},
	  {"id": "shore", "type": "line", "source": "osm", "source-layer": "water"}`))
	res, err = src.ReloadTile(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, res.Buckets, 2)

	src.RemoveTile("t1")
	_, err = src.ReloadTile(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrTileNotLoaded)

	empty := TileParameters{UID: "t2", TileID: tileid.MustOverscaled(14, 0, 14, 0, 0)}
	res, err = src.LoadTile(context.Background(), empty)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestSourceAbort(t *testing.T) {
	started := make(chan struct{})
	load := func(ctx context.Context, id tileid.OverscaledTileID) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	src := NewSource("osm", layerIndex(t, ``), nil, load, DefaultOptions())

	errc := make(chan error, 1)
	go func() {
		_, err := src.LoadTile(context.Background(), params())
		errc <- err
	}()
	<-started
	src.AbortTile("t1")

	err := <-errc
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, src.Loaded("t1"))
}

func TestParseTiles(t *testing.T) {
	layers := layerIndex(t, `{"id": "lakes", "type": "fill", "source": "osm", "source-layer": "water"}`)
	raw := encoded(t, waterTile())

	job := func(x, y uint32, data []byte) Job {
		return Job{Params: TileParameters{TileID: tileid.MustOverscaled(3, 0, 3, x, y), Source: "osm"}, Raw: data}
	}
	jobs := []Job{
		job(7, 7, raw),
		job(0, 0, raw),
		job(1, 0, []byte("not a tile")),
		job(2, 2, nil),
	}

	var progress []int
	var log bytes.Buffer
	opts := DefaultOptions()
	opts.Workers = 2
	opts.ErrorLog = &log
	opts.Progress = func(done, total int) {
		assert.Equal(t, len(jobs), total)
		progress = append(progress, done)
	}

	results, errs := ParseTiles(context.Background(), jobs, layers, nil, opts)
	require.Len(t, results, len(jobs))
	assert.Len(t, errs, 1)
	assert.Contains(t, log.String(), "3/1/0")
	assert.Equal(t, []int{1, 2, 3, 4}, progress)

	require.NotNil(t, results[0])
	assert.Equal(t, jobs[0].Params.TileID, results[0].TileID)
	require.NotNil(t, results[1])
	assert.Nil(t, results[2])
	assert.Nil(t, results[3])

	opts.SkipErrors = false
	opts.Progress = nil
	results, errs = ParseTiles(context.Background(), jobs, layers, nil, opts)
	assert.Nil(t, results)
	require.Len(t, errs, 1)
}
