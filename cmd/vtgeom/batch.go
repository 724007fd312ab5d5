package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"

	"github.com/beetlebugorg/vtgeom/internal/source"
	"github.com/beetlebugorg/vtgeom/pkg/tile"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/transfer"
	"github.com/beetlebugorg/vtgeom/pkg/worker"
)

type batchCmd struct {
	stylePath  string
	mbtiles    string
	sourceName string
	sprites    string
	zoom       uint
	workers    int
	cacheSize  int
	codec      string
	verbose    bool
}

func (c *batchCmd) Name() string     { return "batch" }
func (c *batchCmd) Synopsis() string { return "compile every tile of one zoom level of an MBTiles file" }
func (c *batchCmd) Usage() string {
	return "vtgeom batch -style <path> -mbtiles <path> -zoom <z> [-workers <n> -cache <n> -codec <name>]\n"
}
func (c *batchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.stylePath, "style", "", "Style JSON path")
	f.StringVar(&c.mbtiles, "mbtiles", "", "MBTiles path")
	f.StringVar(&c.sourceName, "source", "", "Style source of the tiles (defaults to the first source)")
	f.StringVar(&c.sprites, "sprites", "", "Directory of <name>.png icons and patterns")
	f.UintVar(&c.zoom, "zoom", 0, "Zoom level to compile")
	f.IntVar(&c.workers, "workers", 0, "Concurrent parses (defaults to the number of CPUs)")
	f.IntVar(&c.cacheSize, "cache", 64, "Tiles kept loaded after compiling")
	f.StringVar(&c.codec, "codec", "lz4", "Transfer compression (none, lz4, zstd, s2)")
	f.BoolVar(&c.verbose, "v", false, "Log debug output to stderr")
}

func (c *batchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	setupLogging(c.verbose)

	compression, err := transfer.ParseCompression(c.codec)
	if err != nil {
		log.Println(err)
		return subcommands.ExitUsageError
	}
	if c.mbtiles == "" || c.zoom > tileid.MaxZoom {
		log.Println("-mbtiles and a valid -zoom are required")
		return subcommands.ExitUsageError
	}
	s, err := loadStyle(c.stylePath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	layers := s.LayerIndex()
	sourceName, err := sourceFor(c.sourceName, layers)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	m, err := source.Open(c.mbtiles)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer m.Close()

	z := uint8(c.zoom)
	var jobs []worker.Job
	err = m.VisitZoom(ctx, z, func(id tileid.CanonicalTileID, data []byte) error {
		jobs = append(jobs, worker.Job{
			Params: worker.TileParameters{
				UID:    id.String(),
				TileID: tileid.OverscaledTileID{OverscaledZ: z, Canonical: id},
				Source: sourceName,
			},
			Raw: data,
		})
		return nil
	})
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	bar := progressbar.NewOptions(len(jobs), progressbar.OptionShowIts(), progressbar.OptionShowCount())
	opts := worker.DefaultOptions()
	opts.Workers = c.workers
	opts.ErrorLog = os.Stderr
	opts.Progress = func(done, total int) { bar.Set(done) }

	start := time.Now()
	results, errs := worker.ParseTiles(ctx, jobs, layers, newLocalActor(c.sprites), opts)
	bar.Finish()
	fmt.Println()
	elapsed := time.Since(start)

	lookup := evaluator(s, float64(z))
	cache := tile.NewCache(c.cacheSize, func(t *tile.Tile) { t.UnloadVectorData() })
	var buckets, transferred int
	for i, res := range results {
		if res == nil {
			continue
		}
		msg, err := transfer.Encode(res, compression)
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
		transferred += len(msg)
		buckets += len(res.Buckets)

		t := tile.New(res.TileID, jobs[i].Params.UID)
		t.LoadVectorData(res, lookup, false)
		cache.Add(t)
	}

	stats := cache.Stats()
	fmt.Printf("%d tiles, %d failed, %d buckets in %s\n", len(jobs), len(errs), buckets, elapsed.Round(time.Millisecond))
	fmt.Printf("transfer: %d bytes (%s)\n", transferred, compression)
	fmt.Printf("cache: %d loaded, %d evicted\n", stats.Entries, stats.Evictions)
	if len(errs) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
