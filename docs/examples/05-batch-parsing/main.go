package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
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

	// Tiles are stored as tiles/{z}-{x}-{y}.mvt
	paths, err := filepath.Glob("tiles/*.mvt")
	if err != nil {
		log.Fatal(err)
	}
	var jobs []worker.Job
	for _, path := range paths {
		var z uint8
		var x, y uint32
		if _, err := fmt.Sscanf(filepath.Base(path), "%d-%d-%d.mvt", &z, &x, &y); err != nil {
			log.Printf("skipping %s: %v", path, err)
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Fatal(err)
		}
		id, err := tileid.NewOverscaledTileID(z, 0, z, x, y)
		if err != nil {
			log.Fatal(err)
		}
		jobs = append(jobs, worker.Job{
			Params: worker.TileParameters{TileID: id, Source: "openmaptiles"},
			Raw:    raw,
		})
	}

	// Parse on every CPU; keep going past broken tiles
	opts := worker.DefaultOptions()
	opts.ErrorLog = os.Stderr
	opts.Progress = func(done, total int) {
		if done%100 == 0 || done == total {
			fmt.Printf("  %d/%d\n", done, total)
		}
	}

	start := time.Now()
	results, errs := worker.ParseTiles(context.Background(), jobs, s.LayerIndex(), noDeps{}, opts)
	elapsed := time.Since(start)

	buckets := 0
	for _, res := range results {
		if res != nil {
			buckets += len(res.Buckets)
		}
	}
	fmt.Printf("Parsed %d tiles in %v (%d failed)\n", len(jobs), elapsed, len(errs))
	fmt.Printf("Buckets: %d\n", buckets)
}
