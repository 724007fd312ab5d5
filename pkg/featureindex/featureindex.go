// Package featureindex is the per-tile spatial index used for hit testing.
//
// While a tile is parsed, every bucket inserts the ring bounding boxes of
// the features it draws, keyed by insertion order. Queries collect the
// candidates overlapping the padded query bounds, walk them top-down
// (latest drawn first), and refine each against the style layers that drew
// it.
package featureindex

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/geometry"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

// PromoteID names the feature property used as the feature id, either for
// every source layer or per source layer.
type PromoteID struct {
	All           string
	BySourceLayer map[string]string
}

func (p PromoteID) property(sourceLayer string) string {
	if p.All != "" {
		return p.All
	}
	return p.BySourceLayer[sourceLayer]
}

// FeatureStateProvider returns the runtime state of a feature.
type FeatureStateProvider interface {
	State(sourceLayer string, id any) style.FeatureState
}

// FeatureIndex maps rendered features back to their source features.
type FeatureIndex struct {
	TileID    tileid.OverscaledTileID
	PromoteID PromoteID

	grid              *grid
	grid3D            *grid
	featureIndexArray *array.FeatureIndexArray
	bucketLayerIDs    [][]string

	mu               sync.Mutex
	rawTileData      []byte
	vtLayers         *vt.VectorTile
	sourceLayerCoder *vt.DictionaryCoder
}

// New returns an empty index for a tile.
func New(id tileid.OverscaledTileID, promoteID PromoteID) *FeatureIndex {
	return &FeatureIndex{
		TileID:            id,
		PromoteID:         promoteID,
		grid:              newGrid(),
		grid3D:            newGrid(),
		featureIndexArray: array.NewFeatureIndexArray(),
	}
}

// Insert indexes the rings of a feature. Rings whose bounding box misses
// the tile are skipped; every ring that hits it is stored under the same
// key.
func (fi *FeatureIndex) Insert(rings []geometry.Ring, featureIndex, sourceLayerIndex, bucketIndex int, is3D bool) {
	key := fi.featureIndexArray.EmplaceBack(uint32(featureIndex), uint16(sourceLayerIndex), uint16(bucketIndex))
	g := fi.grid
	if is3D {
		g = fi.grid3D
	}
	for _, ring := range rings {
		if len(ring) == 0 {
			continue
		}
		b := geometry.Bounds(ring)
		if b.MinX < geometry.Extent && b.MinY < geometry.Extent && b.MaxX >= 0 && b.MaxY >= 0 {
			g.insert(key, b)
		}
	}
}

// AddBucketLayerIDs records the style layers drawn by the next bucket and
// returns its bucket index.
func (fi *FeatureIndex) AddBucketLayerIDs(ids []string) int {
	fi.bucketLayerIDs = append(fi.bucketLayerIDs, slices.Clone(ids))
	return len(fi.bucketLayerIDs) - 1
}

// BucketLayerIDs returns, per bucket index, the ids of the layers it draws.
func (fi *FeatureIndex) BucketLayerIDs() [][]string { return fi.bucketLayerIDs }

// Len returns the number of indexed features.
func (fi *FeatureIndex) Len() int { return fi.featureIndexArray.Len() }

// HasLayer reports whether any bucket of the tile draws the layer.
func (fi *FeatureIndex) HasLayer(id string) bool {
	for _, ids := range fi.bucketLayerIDs {
		if slices.Contains(ids, id) {
			return true
		}
	}
	return false
}

// SetVectorTile attaches decoded source data and its encoded bytes.
func (fi *FeatureIndex) SetVectorTile(tile *vt.VectorTile, raw []byte) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.vtLayers = tile
	fi.rawTileData = raw
	fi.sourceLayerCoder = vt.NewTileCoder(tile)
}

// SetRawTileData attaches encoded source data; it is decoded on first query.
func (fi *FeatureIndex) SetRawTileData(raw []byte) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.rawTileData = raw
	fi.vtLayers = nil
	fi.sourceLayerCoder = nil
}

// RawTileData returns the encoded source data, if any.
func (fi *FeatureIndex) RawTileData() []byte {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.rawTileData
}

// VectorTile returns the decoded source data, decoding the raw bytes if
// needed.
func (fi *FeatureIndex) VectorTile() (*vt.VectorTile, error) {
	tile, _, err := fi.loadVTLayers()
	return tile, err
}

func (fi *FeatureIndex) loadVTLayers() (*vt.VectorTile, *vt.DictionaryCoder, error) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if fi.vtLayers == nil {
		if fi.rawTileData == nil {
			return nil, nil, fmt.Errorf("feature index for %s has no tile data", fi.TileID)
		}
		tile, err := vt.Decode(fi.rawTileData, "")
		if err != nil {
			return nil, nil, err
		}
		fi.vtLayers = tile
		fi.sourceLayerCoder = vt.NewTileCoder(tile)
	}
	return fi.vtLayers, fi.sourceLayerCoder, nil
}

// QueryArgs describes a rendered-features query in tile units.
type QueryArgs struct {
	// QueryGeometry is the query polygon; one point for a click.
	QueryGeometry []orb.Point
	// CameraQueryGeometry is used against extruded features. Defaults to
	// QueryGeometry.
	CameraQueryGeometry []orb.Point
	// QueryPadding in pixels, usually the tile's largest layer query radius.
	QueryPadding float64
	TileSize     float64
	Scale        float64
	Filter       *style.Filter
	// LayerIDs restricts results to these layers when non-nil.
	LayerIDs []string
}

// QueryResult is one matched feature.
type QueryResult struct {
	FeatureIndex int
	SourceLayer  string
	ID           any
	Feature      *geojson.Feature
}

// Query returns the features under the query geometry, grouped by layer
// id, each list in top-down order. layers holds the evaluated style layers
// to test against; layers missing from it are skipped.
func (fi *FeatureIndex) Query(args QueryArgs, layers map[string]*style.Evaluated, states FeatureStateProvider) (map[string][]QueryResult, error) {
	tile, coder, err := fi.loadVTLayers()
	if err != nil {
		return nil, err
	}
	if len(args.QueryGeometry) == 0 {
		return map[string][]QueryResult{}, nil
	}
	tileSize, scale := args.TileSize, args.Scale
	if tileSize <= 0 {
		tileSize = 512
	}
	if scale <= 0 {
		scale = 1
	}
	pixelsToTileUnits := geometry.Extent / tileSize / scale
	padding := args.QueryPadding * pixelsToTileUnits

	b := pointBounds(args.QueryGeometry)
	matching := fi.grid.query(b.Min[0]-padding, b.Min[1]-padding, b.Max[0]+padding, b.Max[1]+padding, nil)

	camera := args.CameraQueryGeometry
	if len(camera) == 0 {
		camera = args.QueryGeometry
	}
	cb := pointBounds(camera)
	matching = append(matching, fi.grid3D.query(cb.Min[0]-padding, cb.Min[1]-padding, cb.Max[0]+padding, cb.Max[1]+padding,
		func(box geometry.Box) bool {
			return geometry.PolygonIntersectsBox(camera, orb.Bound{
				Min: orb.Point{float64(box.MinX) - padding, float64(box.MinY) - padding},
				Max: orb.Point{float64(box.MaxX) + padding, float64(box.MaxY) + padding},
			})
		})...)
	topDown(matching)

	result := make(map[string][]QueryResult)
	previous := -1
	for _, key := range matching {
		if key == previous {
			continue
		}
		previous = key
		match := fi.featureIndexArray.At(key)

		var featureGeometry []geometry.Ring
		fi.loadMatchingFeature(result, tile, coder, int(match.BucketIndex), int(match.SourceLayerIndex), int(match.FeatureIndex),
			args.Filter, args.LayerIDs, layers, states,
			func(f vt.Feature, layer *style.Evaluated, state style.FeatureState) bool {
				if featureGeometry == nil {
					featureGeometry = geometry.Load(f)
				}
				return layer.QueryIntersectsFeature(args.QueryGeometry, f, state, featureGeometry, pixelsToTileUnits)
			})
	}
	return result, nil
}

// LookupSymbolFeatures resolves symbol hits found by placement. There is
// no geometric test; only the filter and layer matching apply.
func (fi *FeatureIndex) LookupSymbolFeatures(symbolFeatureIndexes []int, bucketIndex, sourceLayerIndex int, filter *style.Filter, filterLayerIDs []string, layers map[string]*style.Evaluated) (map[string][]QueryResult, error) {
	tile, coder, err := fi.loadVTLayers()
	if err != nil {
		return nil, err
	}
	result := make(map[string][]QueryResult)
	for _, idx := range symbolFeatureIndexes {
		fi.loadMatchingFeature(result, tile, coder, bucketIndex, sourceLayerIndex, idx, filter, filterLayerIDs, layers, nil, nil)
	}
	return result, nil
}

func (fi *FeatureIndex) loadMatchingFeature(
	result map[string][]QueryResult,
	tile *vt.VectorTile,
	coder *vt.DictionaryCoder,
	bucketIndex, sourceLayerIndex, featureIndex int,
	filter *style.Filter,
	filterLayerIDs []string,
	layers map[string]*style.Evaluated,
	states FeatureStateProvider,
	intersects func(vt.Feature, *style.Evaluated, style.FeatureState) bool,
) {
	if bucketIndex >= len(fi.bucketLayerIDs) {
		return
	}
	layerIDs := fi.bucketLayerIDs[bucketIndex]
	if filterLayerIDs != nil && !intersectIDs(filterLayerIDs, layerIDs) {
		return
	}

	sourceLayerName := coder.Decode(sourceLayerIndex)
	sourceLayer := tile.Layer(sourceLayerName)
	if sourceLayer == nil || featureIndex >= sourceLayer.Len() {
		return
	}
	feature := sourceLayer.Feature(featureIndex)
	if !filter.Eval(float64(fi.TileID.OverscaledZ), feature) {
		return
	}
	id := fi.FeatureID(feature, sourceLayerName)

	for _, layerID := range layerIDs {
		if filterLayerIDs != nil && !slices.Contains(filterLayerIDs, layerID) {
			continue
		}
		layer, ok := layers[layerID]
		if !ok {
			continue
		}
		var state style.FeatureState
		if id != nil && states != nil {
			state = states.State(layer.Layer.SourceLayer, id)
		}
		if intersects != nil && !intersects(feature, layer, state) {
			continue
		}
		g := vt.GeoJSON(feature, fi.TileID.Canonical.Maptile())
		if id != nil {
			g.ID = id
		}
		result[layerID] = append(result[layerID], QueryResult{
			FeatureIndex: featureIndex,
			SourceLayer:  sourceLayerName,
			ID:           id,
			Feature:      g,
		})
	}
}

// FeatureID returns the promoted id property of f, or its id.
func (fi *FeatureIndex) FeatureID(f vt.Feature, sourceLayer string) any {
	if prop := fi.PromoteID.property(sourceLayer); prop != "" {
		v, ok := f.Properties()[prop]
		if !ok {
			return nil
		}
		if b, isBool := v.(bool); isBool {
			if b {
				return 1.0
			}
			return 0.0
		}
		return v
	}
	if id, ok := f.ID(); ok {
		return id
	}
	return nil
}

func intersectIDs(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

func pointBounds(pts []orb.Point) orb.Bound {
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for _, p := range pts {
		b = b.Extend(p)
	}
	return b
}
