package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
	"github.com/beetlebugorg/vtgeom/pkg/worker"
)

// noDeps answers dependency requests with nothing. Styles without text,
// icons or patterns never ask.
type noDeps struct{}

func (noDeps) GetGlyphs(context.Context, worker.GlyphRequest) (atlas.GlyphMap, error) {
	return atlas.GlyphMap{}, nil
}

func (noDeps) GetImages(context.Context, worker.ImageRequest) (atlas.ImageMap, error) {
	return atlas.ImageMap{}, nil
}

func main() {
	// Parse style
	styleJSON, err := os.ReadFile("style.json")
	if err != nil {
		log.Fatal(err)
	}
	s, err := style.Parse(styleJSON)
	if err != nil {
		log.Fatal(err)
	}

	// Decode tile
	raw, err := os.ReadFile("14-8185-5449.mvt")
	if err != nil {
		log.Fatal(err)
	}
	data, err := vt.Decode(raw, "openmaptiles")
	if err != nil {
		log.Fatal(err)
	}

	// Compile into buckets
	params := worker.TileParameters{
		TileID: tileid.MustOverscaled(14, 0, 14, 8185, 5449),
		Source: "openmaptiles",
	}
	res, err := worker.NewTile(params, worker.DefaultOptions()).Parse(context.Background(), data, raw, s.LayerIndex(), noDeps{})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Tile: %s\n", res.TileID)
	fmt.Printf("Buckets: %d\n", len(res.Buckets))
	for _, b := range res.Buckets {
		fmt.Printf("  %s %v\n", b.Kind(), b.LayerIDs())
	}
}
