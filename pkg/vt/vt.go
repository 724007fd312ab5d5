// Package vt is the vector tile input model: layers of features whose
// geometry is a list of integer rings in the layer's native extent.
//
// Decode reads Mapbox Vector Tile protobuf (optionally gzipped) through
// github.com/paulmach/orb/encoding/mvt. MemoryLayer and MemoryFeature
// provide the same interfaces for data built in memory, such as GeoJSON
// sources and tests.
package vt

// GeomType is the vector tile geometry type code.
type GeomType uint8

const (
	Unknown    GeomType = 0
	Point      GeomType = 1
	LineString GeomType = 2
	Polygon    GeomType = 3
)

// String returns the name used by $type filters.
func (t GeomType) String() string {
	switch t {
	case Point:
		return "Point"
	case LineString:
		return "LineString"
	case Polygon:
		return "Polygon"
	default:
		return "Unknown"
	}
}

// DefaultExtent is the extent assumed when a layer does not declare one.
const DefaultExtent = 4096

// Coord is an integer position in a feature's native extent.
type Coord struct {
	X, Y int
}

// Ring is one ring or line of a feature geometry.
type Ring []Coord

// Feature is one feature of a vector tile layer.
type Feature interface {
	Type() GeomType
	// ID returns the feature id, if the feature has one.
	ID() (uint64, bool)
	Properties() map[string]any
	Extent() int
	// LoadGeometry returns the feature rings in native extent coordinates.
	// Polygon rings are closed.
	LoadGeometry() []Ring
}

// Layer is one named layer of a vector tile.
type Layer interface {
	Name() string
	Extent() int
	Version() int
	Len() int
	Feature(i int) Feature
}

// VectorTile is a decoded tile, keyed by source-layer name.
type VectorTile struct {
	Layers map[string]Layer
}

// Layer returns the named layer, or nil.
func (t *VectorTile) Layer(name string) Layer {
	if t == nil {
		return nil
	}
	return t.Layers[name]
}
