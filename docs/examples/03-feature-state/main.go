package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/bucket"
	"github.com/beetlebugorg/vtgeom/pkg/gpu"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tile"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
	"github.com/beetlebugorg/vtgeom/pkg/worker"
)

// Circles take their color from feature state.
const styleJSON = `{
  "version": 8,
  "layers": [
    {"id": "poi", "type": "circle", "source": "openmaptiles", "source-layer": "poi",
     "paint": {"circle-color": ["coalesce", ["feature-state", "color"], "#0000ff"]}}
  ]
}`

type noDeps struct{}

func (noDeps) GetGlyphs(context.Context, worker.GlyphRequest) (atlas.GlyphMap, error) {
	return atlas.GlyphMap{}, nil
}

func (noDeps) GetImages(context.Context, worker.ImageRequest) (atlas.ImageMap, error) {
	return atlas.ImageMap{}, nil
}

func main() {
	s, err := style.Parse([]byte(styleJSON))
	if err != nil {
		log.Fatal(err)
	}
	raw, err := os.ReadFile("14-8185-5449.mvt")
	if err != nil {
		log.Fatal(err)
	}
	data, err := vt.Decode(raw, "openmaptiles")
	if err != nil {
		log.Fatal(err)
	}

	id := tileid.MustOverscaled(14, 0, 14, 8185, 5449)
	res, err := worker.NewTile(worker.TileParameters{TileID: id, Source: "openmaptiles"}, worker.DefaultOptions()).
		Parse(context.Background(), data, raw, s.LayerIndex(), noDeps{})
	if err != nil {
		log.Fatal(err)
	}

	t := tile.New(id, "example")
	t.LoadVectorData(res, nil, false)

	// Upload once, then only the changed paint arrays are sent again
	recorder := gpu.NewRecorder()
	t.Upload(recorder)

	poi := data.Layer("poi")
	if poi == nil || poi.Len() == 0 {
		log.Fatal("tile has no poi")
	}
	featureID, ok := poi.Feature(0).ID()
	if !ok {
		log.Fatal("poi has no id")
	}
	key, _ := bucket.FeatureKey(featureID)

	err = t.SetFeatureState(map[string]bucket.FeatureStates{
		"poi": {key: style.FeatureState{"color": "#ff0000"}},
	})
	if err != nil {
		log.Fatal(err)
	}
	t.Upload(recorder)

	stats := recorder.Stats()
	fmt.Printf("Buffers: %d vertex, %d index\n", stats.VertexBuffers, stats.IndexBuffers)
	fmt.Printf("Paint updates: %d\n", stats.Updates)
}
