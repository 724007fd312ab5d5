package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/transfer"
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

	// Compare message sizes per codec
	for _, c := range []transfer.Compression{transfer.None, transfer.LZ4, transfer.Zstd, transfer.S2} {
		msg, err := transfer.Encode(res, c)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%-5s %8d bytes\n", c, len(msg))
	}

	// Decode on the receiving side against its own copy of the style
	msg, err := transfer.Encode(res, transfer.Zstd)
	if err != nil {
		log.Fatal(err)
	}
	got, err := transfer.Decode(msg, func(id string) *style.Evaluated {
		if l := s.Layer(id); l != nil {
			return l.Evaluate(style.EvaluationParameters{Zoom: 14})
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Decoded %s: %d buckets, %d indexed features\n", got.TileID, len(got.Buckets), got.FeatureIndex.Len())
}
