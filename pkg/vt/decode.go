package vt

import (
	"bytes"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/vtgeom/internal/logging"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Decode parses Mapbox Vector Tile bytes. Gzip-compressed payloads are
// detected by their magic bytes. sourceName only labels warnings.
func Decode(data []byte, sourceName string) (*VectorTile, error) {
	var (
		layers mvt.Layers
		err    error
	)
	if bytes.HasPrefix(data, gzipMagic) {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, fmt.Errorf("decode vector tile: %w", err)
	}

	tile := &VectorTile{Layers: make(map[string]Layer, len(layers))}
	for _, l := range layers {
		if l.Version < 2 {
			logging.WarnOnce(fmt.Sprintf("Vector tile source %q layer %q does not use vector tile spec v2 and therefore may have some rendering errors.", sourceName, l.Name))
		}
		tile.Layers[l.Name] = &decodedLayer{layer: l}
	}
	return tile, nil
}

type decodedLayer struct {
	layer *mvt.Layer
}

func (l *decodedLayer) Name() string { return l.layer.Name }

func (l *decodedLayer) Extent() int {
	if l.layer.Extent == 0 {
		return DefaultExtent
	}
	return int(l.layer.Extent)
}

func (l *decodedLayer) Version() int { return int(l.layer.Version) }

func (l *decodedLayer) Len() int { return len(l.layer.Features) }

func (l *decodedLayer) Feature(i int) Feature {
	return &decodedFeature{feature: l.layer.Features[i], extent: l.Extent()}
}

type decodedFeature struct {
	feature *geojson.Feature
	extent  int
}

func (f *decodedFeature) Type() GeomType {
	switch f.feature.Geometry.(type) {
	case orb.Point, orb.MultiPoint:
		return Point
	case orb.LineString, orb.MultiLineString:
		return LineString
	case orb.Polygon, orb.MultiPolygon:
		return Polygon
	default:
		return Unknown
	}
}

func (f *decodedFeature) ID() (uint64, bool) {
	return numericID(f.feature.ID)
}

func (f *decodedFeature) Properties() map[string]any {
	return f.feature.Properties
}

func (f *decodedFeature) Extent() int { return f.extent }

func (f *decodedFeature) LoadGeometry() []Ring {
	return flatten(f.feature.Geometry)
}

// numericID accepts the id representations orb produces and accepts.
func numericID(id any) (uint64, bool) {
	switch v := id.(type) {
	case uint64:
		return v, true
	case uint32:
		return uint64(v), true
	case uint:
		return uint64(v), true
	case int:
		return uint64(v), v >= 0
	case int64:
		return uint64(v), v >= 0
	case int32:
		return uint64(v), v >= 0
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

// flatten turns an orb geometry in tile coordinates into rings: one
// single-point ring per point, one ring per line, and every polygon ring in
// order, closed.
func flatten(g orb.Geometry) []Ring {
	switch g := g.(type) {
	case orb.Point:
		return []Ring{{toCoord(g)}}
	case orb.MultiPoint:
		rings := make([]Ring, 0, len(g))
		for _, p := range g {
			rings = append(rings, Ring{toCoord(p)})
		}
		return rings
	case orb.LineString:
		return []Ring{toRing(g, false)}
	case orb.MultiLineString:
		rings := make([]Ring, 0, len(g))
		for _, ls := range g {
			rings = append(rings, toRing(ls, false))
		}
		return rings
	case orb.Polygon:
		rings := make([]Ring, 0, len(g))
		for _, r := range g {
			rings = append(rings, toRing(r, true))
		}
		return rings
	case orb.MultiPolygon:
		var rings []Ring
		for _, p := range g {
			for _, r := range p {
				rings = append(rings, toRing(r, true))
			}
		}
		return rings
	default:
		return nil
	}
}

func toCoord(p orb.Point) Coord {
	return Coord{X: int(math.Round(p[0])), Y: int(math.Round(p[1]))}
}

func toRing(points []orb.Point, closed bool) Ring {
	ring := make(Ring, 0, len(points)+1)
	for _, p := range points {
		ring = append(ring, toCoord(p))
	}
	if closed && len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}
