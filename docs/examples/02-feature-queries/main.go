package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tile"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
	"github.com/beetlebugorg/vtgeom/pkg/worker"
)

type noDeps struct{}

func (noDeps) GetGlyphs(context.Context, worker.GlyphRequest) (atlas.GlyphMap, error) {
	return atlas.GlyphMap{}, nil
}

func (noDeps) GetImages(context.Context, worker.ImageRequest) (atlas.ImageMap, error) {
	return atlas.ImageMap{}, nil
}

func main() {
	styleJSON, err := os.ReadFile("style.json")
	if err != nil {
		log.Fatal(err)
	}
	s, err := style.Parse(styleJSON)
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

	// Load the result into a renderer-side tile
	lookup := func(id string) *style.Evaluated {
		if l := s.Layer(id); l != nil {
			return l.Evaluate(style.EvaluationParameters{Zoom: 14})
		}
		return nil
	}
	t := tile.New(id, "example")
	t.LoadVectorData(res, lookup, false)

	layers := map[string]*style.Evaluated{}
	for _, l := range s.Layers {
		layers[l.ID] = lookup(l.ID)
	}

	// Query a small box in the middle of the tile (tile units, extent 8192)
	query := []orb.Point{{4000, 4000}, {4200, 4000}, {4200, 4200}, {4000, 4200}, {4000, 4000}}
	hits, err := t.QueryRenderedFeatures(layers, query, query, 1, tile.QueryParams{}, nil)
	if err != nil {
		log.Fatal(err)
	}

	for layerID, results := range hits {
		fmt.Printf("%s: %d features\n", layerID, len(results))
		for _, r := range results {
			fmt.Printf("  %v %s %v\n", r.ID, r.Feature.Geometry.GeoJSONType(), r.Feature.Properties["name"])
		}
	}

	// Every building of the tile, as GeoJSON in lon/lat
	buildings, err := t.QuerySourceFeatures("building", style.MustParseFilter(`["has", "render_height"]`))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Buildings with height: %d\n", len(buildings))
}
