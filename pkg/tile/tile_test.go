package tile

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/vtgeom/pkg/bucket"
	"github.com/beetlebugorg/vtgeom/pkg/gpu"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
	"github.com/beetlebugorg/vtgeom/pkg/worker"
)

const fixtureStyle = `{
  "version": 8,
  "layers": [
    {"id": "lakes", "type": "fill", "source": "osm", "source-layer": "water"},
    {"id": "lakes-tint", "type": "fill", "source": "osm", "source-layer": "water", "paint": {"fill-color": "#0ff"}},
    {"id": "poi", "type": "circle", "source": "osm", "source-layer": "poi",
     "paint": {
       "circle-radius": ["get", "size"],
       "circle-color": ["coalesce", ["feature-state", "color"], "#ff0000"]
     }},
    {"id": "labels", "type": "symbol", "source": "osm", "source-layer": "poi",
     "layout": {"text-field": "{name}"}}
  ]
}`

var fixtureID = tileid.MustOverscaled(14, 0, 14, 8000, 5000)

func square(x, y, size int) vt.Ring {
	return vt.Ring{{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size}, {X: x, Y: y}}
}

func uid(v uint64) *uint64 { return &v }

type fixture struct {
	style *style.Style
	data  *vt.VectorTile
	raw   []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := style.Parse([]byte(fixtureStyle))
	require.NoError(t, err)
	data := vt.NewMemoryTile(
		&vt.MemoryLayer{LayerName: "water", ExtentSize: 8192, FeatureSlice: []*vt.MemoryFeature{
			{GeomType: vt.Polygon, FeatureID: uid(1), Props: map[string]any{"class": "lake"}, Rings: []vt.Ring{square(100, 100, 200)}},
			{GeomType: vt.Polygon, FeatureID: uid(3), Props: map[string]any{"class": "pond"}, Rings: []vt.Ring{square(1000, 1000, 20)}},
		}},
		&vt.MemoryLayer{LayerName: "poi", ExtentSize: 8192, FeatureSlice: []*vt.MemoryFeature{
			{GeomType: vt.Point, FeatureID: uid(2), Props: map[string]any{"name": "dock", "size": 7.0},
				Rings: []vt.Ring{{{X: 500, Y: 500}}}},
		}},
	)
	raw, err := vt.Encode(data)
	require.NoError(t, err)
	return &fixture{style: s, data: data, raw: raw}
}

func (f *fixture) parse(t *testing.T, raw []byte) *worker.Result {
	t.Helper()
	p := worker.TileParameters{TileID: fixtureID, Source: "osm"}
	res, err := worker.NewTile(p, worker.DefaultOptions()).Parse(context.Background(), f.data, raw, f.style.LayerIndex(), nil)
	require.NoError(t, err)
	return res
}

func (f *fixture) lookup(id string) *style.Evaluated {
	if l := f.style.Layer(id); l != nil {
		return l.Evaluate(style.EvaluationParameters{Zoom: 14})
	}
	return nil
}

func (f *fixture) layers(ids ...string) map[string]*style.Evaluated {
	out := make(map[string]*style.Evaluated, len(ids))
	for _, id := range ids {
		out[id] = f.lookup(id)
	}
	return out
}

func TestLoadEmptyTile(t *testing.T) {
	tile := New(fixtureID, "a")
	assert.Equal(t, Loading, tile.State)
	assert.False(t, tile.HasData())

	tile.LoadVectorData(nil, nil, false)
	assert.Equal(t, Loaded, tile.State)
	require.NotNil(t, tile.CollisionBoxArray)
	assert.Zero(t, tile.CollisionBoxArray.Len())
	assert.Empty(t, tile.Buckets)

	got, err := tile.QueryRenderedFeatures(nil, []orb.Point{{1, 1}}, nil, 1, QueryParams{}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadVectorData(t *testing.T) {
	f := newFixture(t)
	tile := New(fixtureID, "a")
	tile.LoadVectorData(f.parse(t, f.raw), f.lookup, false)

	assert.Equal(t, Loaded, tile.State)
	require.Len(t, tile.Buckets, 4)
	assert.Same(t, tile.GetBucket("lakes"), tile.GetBucket("lakes-tint"))
	assert.Nil(t, tile.GetBucket("roads"))
	assert.True(t, tile.HasSymbolBuckets)
	assert.False(t, tile.GetBucket("labels").(*bucket.SymbolBucket).JustReloaded)
	assert.Equal(t, 7.0, tile.QueryPadding)
	assert.Equal(t, f.raw, tile.LatestRawTileData)
	assert.Equal(t, 1, tile.CollisionBoxArray.Len())
}

func TestUniqueBucketsInIndexOrder(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		tile := New(fixtureID, "a")
		tile.LoadVectorData(f.parse(t, f.raw), f.lookup, false)

		got := tile.uniqueBuckets()
		require.Len(t, got, 3, "shared buckets are listed once")
		for j := 1; j < len(got); j++ {
			assert.Less(t, got[j-1].Index(), got[j].Index())
		}
		assert.Same(t, tile.GetBucket("lakes"), got[0])
		assert.Same(t, tile.GetBucket("labels"), got[2])
	}
}

func TestReloadKeepsRawTileData(t *testing.T) {
	f := newFixture(t)
	tile := New(fixtureID, "a")
	tile.LoadVectorData(f.parse(t, f.raw), f.lookup, false)

	tile.Reload()
	assert.Equal(t, Reloading, tile.State)
	assert.True(t, tile.HasData())

	tile.LoadVectorData(f.parse(t, nil), f.lookup, true)
	assert.Equal(t, Loaded, tile.State)
	assert.Equal(t, f.raw, tile.LatestFeatureIndex.RawTileData())
	assert.True(t, tile.GetBucket("labels").(*bucket.SymbolBucket).JustReloaded)

	got, err := tile.QueryRenderedFeatures(f.layers("lakes", "lakes-tint"), []orb.Point{{150, 150}}, nil, 1, QueryParams{}, nil)
	require.NoError(t, err)
	assert.Len(t, got["lakes"], 1)
	assert.Len(t, got["lakes-tint"], 1)
}

func TestUploadAndUnload(t *testing.T) {
	f := newFixture(t)
	tile := New(fixtureID, "a")
	tile.UnloadVectorData() // before any data

	tile.LoadVectorData(f.parse(t, f.raw), f.lookup, false)
	rec := gpu.NewRecorder()
	tile.Upload(rec)
	stats := rec.Stats()
	assert.Positive(t, stats.Live)

	tile.Upload(rec)
	assert.Equal(t, stats, rec.Stats(), "nothing changed, nothing uploaded")

	tile.UnloadVectorData()
	assert.Zero(t, rec.Stats().Live)
	assert.Equal(t, Unloaded, tile.State)
	assert.Empty(t, tile.Buckets)
	assert.Nil(t, tile.LatestFeatureIndex)

	tile.UnloadVectorData()
	assert.Zero(t, rec.Stats().Live)
}

func TestLoadUnloadsPreviousData(t *testing.T) {
	f := newFixture(t)
	tile := New(fixtureID, "a")
	tile.LoadVectorData(f.parse(t, f.raw), f.lookup, false)
	rec := gpu.NewRecorder()
	tile.Upload(rec)

	tile.LoadVectorData(f.parse(t, f.raw), f.lookup, false)
	assert.Zero(t, rec.Stats().Live)
	assert.Equal(t, Loaded, tile.State)
}

func TestSetFeatureState(t *testing.T) {
	f := newFixture(t)
	tile := New(fixtureID, "a")
	tile.LoadVectorData(f.parse(t, f.raw), f.lookup, false)
	rec := gpu.NewRecorder()
	tile.Upload(rec)

	require.NoError(t, tile.SetFeatureState(map[string]bucket.FeatureStates{
		"poi": {2: {"color": "#0000ff"}},
	}))
	circle := tile.GetBucket("poi")
	assert.True(t, circle.UploadPending())
	assert.Equal(t, []float32{0, 0, 1, 1}, circle.Programs().Get("poi").Binders["circle-color"].At(0))

	tile.Upload(rec)
	assert.Positive(t, rec.Stats().Updates)
	assert.False(t, circle.UploadPending())

	assert.NoError(t, tile.SetFeatureState(nil))
}

func TestQueryRenderedFeatures(t *testing.T) {
	f := newFixture(t)
	tile := New(fixtureID, "a")
	tile.LoadVectorData(f.parse(t, f.raw), f.lookup, false)
	layers := f.layers("lakes", "poi")

	got, err := tile.QueryRenderedFeatures(layers, []orb.Point{{503, 503}}, nil, 1, QueryParams{}, nil)
	require.NoError(t, err)
	require.Len(t, got["poi"], 1)
	assert.Equal(t, uint64(2), got["poi"][0].ID)
	assert.NotContains(t, got, "lakes")

	got, err = tile.QueryRenderedFeatures(layers, []orb.Point{{150, 150}}, nil, 1, QueryParams{LayerIDs: []string{"poi"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryRenderedSymbols(t *testing.T) {
	f := newFixture(t)
	tile := New(fixtureID, "a")
	_, err := tile.QueryRenderedSymbols([]int{0}, 0, 0, QueryParams{}, nil)
	assert.ErrorIs(t, err, ErrTileUnloaded)

	tile.LoadVectorData(f.parse(t, f.raw), f.lookup, false)
	labels := tile.GetBucket("labels")
	box := tile.CollisionBoxArray.At(0)
	got, err := tile.QueryRenderedSymbols([]int{int(box.FeatureIndex)}, labels.Index(), int(box.SourceLayerIndex), QueryParams{}, f.layers("labels"))
	require.NoError(t, err)
	require.Len(t, got["labels"], 1)
	assert.Equal(t, "dock", got["labels"][0].Feature.Properties["name"])
}

func TestQuerySourceFeatures(t *testing.T) {
	f := newFixture(t)
	tile := New(fixtureID, "a")
	_, err := tile.QuerySourceFeatures("water", nil)
	assert.ErrorIs(t, err, ErrTileUnloaded)

	tile.LoadVectorData(f.parse(t, f.raw), f.lookup, false)
	all, err := tile.QuerySourceFeatures("water", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ponds, err := tile.QuerySourceFeatures("water", style.MustParseFilter(`["==", "class", "pond"]`))
	require.NoError(t, err)
	require.Len(t, ponds, 1)
	assert.Equal(t, uint64(3), ponds[0].ID)

	none, err := tile.QuerySourceFeatures("roads", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFailAndAbort(t *testing.T) {
	boom := errors.New("404")
	tile := New(fixtureID, "a")
	tile.Fail(boom)
	assert.Equal(t, Errored, tile.State)
	assert.ErrorIs(t, tile.Err, boom)

	loaded := New(fixtureID, "b")
	loaded.LoadVectorData(nil, nil, false)
	loaded.Fail(boom)
	assert.Equal(t, Loaded, loaded.State, "a failed reload keeps the old data")

	assert.False(t, tile.Aborted())
	tile.Abort()
	assert.True(t, tile.Aborted())
}

func TestExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tile := New(fixtureID, "a")
	_, ok := tile.ExpiryTimeout(now)
	assert.False(t, ok)

	tile.SetExpiryData(http.Header{
		"Cache-Control": {"public, max-age=60"},
		"Expires":       {now.Add(time.Hour).Format(http.TimeFormat)},
	}, now)
	timeout, ok := tile.ExpiryTimeout(now)
	require.True(t, ok)
	assert.Equal(t, time.Minute, timeout)

	other := New(fixtureID, "b")
	other.SetExpiryData(http.Header{"Expires": {now.Add(time.Hour).Format(http.TimeFormat)}}, now)
	timeout, _ = other.ExpiryTimeout(now)
	assert.Equal(t, time.Hour, timeout)

	tile.LoadVectorData(nil, nil, false)
	assert.False(t, tile.CheckExpiry(now))
	assert.True(t, tile.CheckExpiry(now.Add(2*time.Minute)))
	assert.Equal(t, Expired, tile.State)
	assert.True(t, tile.HasData())
	timeout, _ = tile.ExpiryTimeout(now.Add(2 * time.Minute))
	assert.Zero(t, timeout)
}
