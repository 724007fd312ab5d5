// Package tile holds the drawing side of a vector tile: the buckets
// received from a worker, their GPU buffers and the index used to answer
// feature queries, plus a FIFO cache of recently used tiles.
package tile

import (
	"errors"
	"fmt"
	"image"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/logging"
	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/bucket"
	"github.com/beetlebugorg/vtgeom/pkg/featureindex"
	"github.com/beetlebugorg/vtgeom/pkg/gpu"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
	"github.com/beetlebugorg/vtgeom/pkg/worker"
)

// ErrTileUnloaded is returned by queries on a tile without data.
var ErrTileUnloaded = errors.New("tile: no data loaded")

// State is the lifecycle state of a Tile.
type State uint8

const (
	Loading State = iota
	Loaded
	Reloading
	Unloaded
	Errored
	Expired
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Reloading:
		return "reloading"
	case Unloaded:
		return "unloaded"
	case Errored:
		return "errored"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Tile is one tile as seen by the renderer. It is not safe for concurrent
// use, except for Abort and Aborted.
type Tile struct {
	ID    tileid.OverscaledTileID
	UID   string
	State State
	// Err is the load error of an Errored tile.
	Err error

	// Buckets maps each layer id to the bucket that draws it. Layers of
	// one family share a bucket.
	Buckets map[string]bucket.Bucket

	LatestFeatureIndex *featureindex.FeatureIndex
	// LatestRawTileData survives unloading, so a reload that does not
	// resend the encoded tile can still be queried.
	LatestRawTileData []byte

	CollisionBoxArray *array.CollisionBoxArray
	GlyphAtlasImage   *image.Alpha
	ImageAtlas        *atlas.ImageAtlas

	HasSymbolBuckets bool
	// QueryPadding is the largest query radius, in pixels, of the layers
	// drawn by the tile.
	QueryPadding float64

	// Expires is when the tile data goes stale. Zero means never.
	Expires time.Time

	aborted atomic.Bool
}

// New returns a tile in the Loading state.
func New(id tileid.OverscaledTileID, uid string) *Tile {
	return &Tile{ID: id, UID: uid, State: Loading, Buckets: make(map[string]bucket.Bucket)}
}

// HasData reports whether the tile holds buckets that can be drawn.
func (t *Tile) HasData() bool {
	return t.State == Loaded || t.State == Reloading || t.State == Expired
}

// Abort marks the tile so that a load finishing later is dropped.
func (t *Tile) Abort() { t.aborted.Store(true) }

// Aborted reports whether Abort was called.
func (t *Tile) Aborted() bool { return t.aborted.Load() }

// Reload marks a loaded tile as being reparsed.
func (t *Tile) Reload() {
	if t.HasData() {
		t.State = Reloading
	}
}

// Fail records a load error. A tile that still has data keeps it.
func (t *Tile) Fail(err error) {
	t.Err = err
	if !t.HasData() {
		t.State = Errored
	}
	logging.Logger().Debug("tile load failed", "tile", t.ID.String(), "error", err)
}

// LoadVectorData installs a parse result. Any data already held is
// unloaded first. A nil result is an empty tile: it becomes Loaded with no
// buckets. lookup, if set, supplies the current evaluated layers for the
// query padding. justReloaded marks symbol buckets for placement.
func (t *Tile) LoadVectorData(data *worker.Result, lookup func(id string) *style.Evaluated, justReloaded bool) {
	if t.HasData() {
		t.UnloadVectorData()
	}
	t.State = Loaded
	t.Err = nil

	if data == nil {
		t.CollisionBoxArray = array.NewCollisionBoxArray()
		return
	}

	if data.FeatureIndex != nil {
		t.LatestFeatureIndex = data.FeatureIndex
		if raw := data.FeatureIndex.RawTileData(); raw != nil {
			t.LatestRawTileData = raw
		} else if t.LatestRawTileData != nil {
			t.LatestFeatureIndex.SetRawTileData(t.LatestRawTileData)
		}
	}
	t.CollisionBoxArray = data.CollisionBoxArray
	if t.CollisionBoxArray == nil {
		t.CollisionBoxArray = array.NewCollisionBoxArray()
	}

	t.Buckets = make(map[string]bucket.Bucket)
	t.HasSymbolBuckets = false
	t.QueryPadding = 0
	for _, b := range data.Buckets {
		for _, id := range b.LayerIDs() {
			t.Buckets[id] = b
		}
		if s, ok := b.(*bucket.SymbolBucket); ok {
			t.HasSymbolBuckets = true
			s.JustReloaded = justReloaded
		}
		for _, layer := range b.Layers() {
			if lookup != nil {
				if current := lookup(layer.Layer.ID); current != nil {
					layer = current
				}
			}
			t.QueryPadding = math.Max(t.QueryPadding, layer.QueryRadius(b.Programs()))
		}
	}

	if data.ImageAtlas != nil {
		t.ImageAtlas = data.ImageAtlas
	}
	if data.GlyphAtlasImage != nil {
		t.GlyphAtlasImage = data.GlyphAtlasImage
	}
}

// UnloadVectorData frees the GPU resources of every bucket and drops the
// parsed data. It is safe to call at any time, any number of times.
func (t *Tile) UnloadVectorData() {
	for _, b := range t.uniqueBuckets() {
		b.Destroy()
	}
	t.Buckets = make(map[string]bucket.Bucket)
	t.ImageAtlas = nil
	t.GlyphAtlasImage = nil
	t.LatestFeatureIndex = nil
	t.HasSymbolBuckets = false
	t.State = Unloaded
}

// uniqueBuckets returns each bucket once, in bucket index order.
func (t *Tile) uniqueBuckets() []bucket.Bucket {
	seen := make(map[bucket.Bucket]bool, len(t.Buckets))
	var out []bucket.Bucket
	for _, b := range t.Buckets {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index() < out[j].Index() })
	return out
}

// GetBucket returns the bucket drawing a layer, or nil.
func (t *Tile) GetBucket(layerID string) bucket.Bucket {
	return t.Buckets[layerID]
}

// Upload creates GPU buffers for buckets that have none yet and uploads
// paint arrays that changed since the last upload.
func (t *Tile) Upload(ctx gpu.Context) {
	for _, b := range t.uniqueBuckets() {
		if b.UploadPending() {
			b.Upload(ctx)
		}
	}
}

// QueryParams narrows a rendered-features query.
type QueryParams struct {
	Filter   *style.Filter
	LayerIDs []string
}

// QueryRenderedFeatures returns the features drawn under queryGeometry, in
// tile units, grouped by layer id. scale is the ratio of the tile's display
// size to its nominal size. layers holds the evaluated layers to test.
func (t *Tile) QueryRenderedFeatures(
	layers map[string]*style.Evaluated,
	queryGeometry, cameraQueryGeometry []orb.Point,
	scale float64,
	params QueryParams,
	states featureindex.FeatureStateProvider,
) (map[string][]featureindex.QueryResult, error) {
	if t.LatestFeatureIndex == nil || t.LatestFeatureIndex.RawTileData() == nil {
		return map[string][]featureindex.QueryResult{}, nil
	}
	return t.LatestFeatureIndex.Query(featureindex.QueryArgs{
		QueryGeometry:       queryGeometry,
		CameraQueryGeometry: cameraQueryGeometry,
		QueryPadding:        t.QueryPadding,
		TileSize:            512,
		Scale:               scale,
		Filter:              params.Filter,
		LayerIDs:            params.LayerIDs,
	}, layers, states)
}

// QueryRenderedSymbols resolves symbol hits found by placement.
func (t *Tile) QueryRenderedSymbols(symbolFeatureIndexes []int, bucketIndex, sourceLayerIndex int, params QueryParams, layers map[string]*style.Evaluated) (map[string][]featureindex.QueryResult, error) {
	if t.LatestFeatureIndex == nil {
		return nil, ErrTileUnloaded
	}
	return t.LatestFeatureIndex.LookupSymbolFeatures(symbolFeatureIndexes, bucketIndex, sourceLayerIndex, params.Filter, params.LayerIDs, layers)
}

// QuerySourceFeatures returns every feature of a source layer that passes
// filter, as GeoJSON in longitude and latitude.
func (t *Tile) QuerySourceFeatures(sourceLayer string, filter *style.Filter) ([]*geojson.Feature, error) {
	if t.LatestFeatureIndex == nil {
		return nil, ErrTileUnloaded
	}
	data, err := t.LatestFeatureIndex.VectorTile()
	if err != nil {
		return nil, err
	}
	layer := data.Layer(sourceLayer)
	if layer == nil {
		return nil, nil
	}
	zoom := float64(t.ID.OverscaledZ)
	var out []*geojson.Feature
	for i := 0; i < layer.Len(); i++ {
		f := layer.Feature(i)
		if !filter.Eval(zoom, f) {
			continue
		}
		g := vt.GeoJSON(f, t.ID.Canonical.Maptile())
		if id := t.LatestFeatureIndex.FeatureID(f, sourceLayer); id != nil {
			g.ID = id
		}
		out = append(out, g)
	}
	return out, nil
}

// SetFeatureState rewrites the paint arrays of features whose state
// changed. states holds, per source layer, the state by feature key.
func (t *Tile) SetFeatureState(states map[string]bucket.FeatureStates) error {
	if t.LatestFeatureIndex == nil || t.LatestFeatureIndex.RawTileData() == nil || len(states) == 0 {
		return nil
	}
	data, err := t.LatestFeatureIndex.VectorTile()
	if err != nil {
		return err
	}
	var images atlas.Positions
	if t.ImageAtlas != nil {
		images = t.ImageAtlas.PatternPositions
	}
	for _, b := range t.uniqueBuckets() {
		sourceLayerID := b.Layers()[0].Layer.SourceLayer
		sourceLayer := data.Layer(sourceLayerID)
		layerStates := states[sourceLayerID]
		if sourceLayer == nil || len(layerStates) == 0 {
			continue
		}
		b.Update(layerStates, sourceLayer, images)
	}
	return nil
}

// SetExpiryData sets Expires from HTTP caching headers. max-age in
// Cache-Control wins over Expires.
func (t *Tile) SetExpiryData(header http.Header, now time.Time) {
	for _, directive := range strings.Split(header.Get("Cache-Control"), ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
			t.Expires = now.Add(time.Duration(seconds) * time.Second)
			return
		}
	}
	if expires := header.Get("Expires"); expires != "" {
		if at, err := http.ParseTime(expires); err == nil {
			t.Expires = at
		}
	}
}

// ExpiryTimeout returns how long the tile stays fresh, or false if it
// never expires. An expired tile reports zero.
func (t *Tile) ExpiryTimeout(now time.Time) (time.Duration, bool) {
	if t.Expires.IsZero() {
		return 0, false
	}
	return max(t.Expires.Sub(now), 0), true
}

// CheckExpiry moves a tile whose data went stale to Expired. It keeps its
// buckets until new data is loaded.
func (t *Tile) CheckExpiry(now time.Time) bool {
	if t.State == Loaded && !t.Expires.IsZero() && !now.Before(t.Expires) {
		t.State = Expired
		return true
	}
	return false
}
