package vt

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

// Encode serializes any VectorTile to Mapbox Vector Tile bytes, layers in
// name order. Geometry is written in each layer's own extent.
func Encode(t *VectorTile) ([]byte, error) {
	names := make([]string, 0, len(t.Layers))
	for name := range t.Layers {
		names = append(names, name)
	}
	sort.Strings(names)

	layers := make(mvt.Layers, 0, len(names))
	for _, name := range names {
		l := t.Layers[name]
		out := &mvt.Layer{
			Name:     name,
			Version:  2,
			Extent:   uint32(l.Extent()),
			Features: make([]*geojson.Feature, 0, l.Len()),
		}
		for i := 0; i < l.Len(); i++ {
			f := l.Feature(i)
			g := toOrb(f.Type(), f.LoadGeometry())
			if g == nil {
				continue
			}
			gf := geojson.NewFeature(g)
			for k, v := range f.Properties() {
				gf.Properties[k] = v
			}
			if id, ok := f.ID(); ok {
				gf.ID = id
			}
			out.Features = append(out.Features, gf)
		}
		layers = append(layers, out)
	}

	data, err := mvt.Marshal(layers)
	if err != nil {
		return nil, fmt.Errorf("encode vector tile: %w", err)
	}
	return data, nil
}
