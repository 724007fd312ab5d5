package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/beetlebugorg/vtgeom/pkg/bucket"
	"github.com/beetlebugorg/vtgeom/pkg/gpu"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tile"
	"github.com/beetlebugorg/vtgeom/pkg/transfer"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
	"github.com/beetlebugorg/vtgeom/pkg/worker"
)

type compileCmd struct {
	tileFlags
	codec string
	out   string
}

func (c *compileCmd) Name() string     { return "compile" }
func (c *compileCmd) Synopsis() string { return "compile one vector tile and print its buckets" }
func (c *compileCmd) Usage() string {
	return "vtgeom compile -style <path> (-tile <path> | -mbtiles <path>) -z <z> -x <x> -y <y> [-codec <name> -o <path>]\n"
}
func (c *compileCmd) SetFlags(f *flag.FlagSet) {
	c.tileFlags.register(f)
	f.StringVar(&c.codec, "codec", "none", "Transfer compression (none, lz4, zstd, s2)")
	f.StringVar(&c.out, "o", "", "Write the encoded transfer message to this path")
}

func (c *compileCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	setupLogging(c.verbose)

	compression, err := transfer.ParseCompression(c.codec)
	if err != nil {
		log.Println(err)
		return subcommands.ExitUsageError
	}
	s, t, err := c.load()
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	res, err := c.parse(ctx, s, t)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	// Send the result through the transfer codec, as a worker would.
	msg, err := transfer.Encode(res, compression)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	lookup := evaluator(s, float64(t.ID.OverscaledZ))
	res, err = transfer.Decode(msg, lookup)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	if c.out != "" {
		if err := os.WriteFile(c.out, msg, 0o644); err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
	}

	t.LoadVectorData(res, lookup, false)
	recorder := gpu.NewRecorder()
	t.Upload(recorder)

	printBuckets(os.Stdout, res.Buckets)
	stats := recorder.Stats()
	fmt.Printf("\ntile %s: %d buckets, %d layers, query padding %.1f\n", t.ID, len(res.Buckets), len(t.Buckets), t.QueryPadding)
	fmt.Printf("transfer: %d bytes (%s)\n", len(msg), compression)
	fmt.Printf("gpu: %d vertex buffers, %d index buffers, %d bytes\n", stats.VertexBuffers, stats.IndexBuffers, stats.Bytes)
	return subcommands.ExitSuccess
}

// load reads the style and returns a Loading tile for the selected id.
func (f *tileFlags) load() (*style.Style, *tile.Tile, error) {
	s, err := loadStyle(f.stylePath)
	if err != nil {
		return nil, nil, err
	}
	id, err := f.tileID()
	if err != nil {
		return nil, nil, err
	}
	return s, tile.New(id, "cli"), nil
}

// parse decodes and parses the selected tile.
func (f *tileFlags) parse(ctx context.Context, s *style.Style, t *tile.Tile) (*worker.Result, error) {
	layers := s.LayerIndex()
	sourceName, err := sourceFor(f.sourceName, layers)
	if err != nil {
		return nil, err
	}
	raw, err := f.readTile(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	data, err := vt.Decode(raw, sourceName)
	if err != nil {
		return nil, err
	}
	p := worker.TileParameters{UID: t.UID, TileID: t.ID, Source: sourceName}
	return worker.NewTile(p, worker.DefaultOptions()).Parse(ctx, data, raw, layers, newLocalActor(f.sprites))
}

// evaluator evaluates style layers at a fixed zoom.
func evaluator(s *style.Style, zoom float64) func(string) *style.Evaluated {
	return func(id string) *style.Evaluated {
		if l := s.Layer(id); l != nil {
			return l.Evaluate(style.EvaluationParameters{Zoom: zoom})
		}
		return nil
	}
}

func printBuckets(w io.Writer, buckets []bucket.Bucket) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tKIND\tLAYERS\tVERTICES\tSEGMENTS\tPRIMITIVES\tSYMBOLS")
	for _, b := range buckets {
		p := b.Payload()
		vertices := 0
		if a, ok := p.Arrays[bucket.ArrayLayoutVertex]; ok {
			vertices = a.Len()
		}
		segments, primitives := 0, 0
		for _, v := range p.Segments {
			if v != nil {
				segments += v.Len()
				primitives += v.PrimitiveTotal()
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\n",
			p.Index, p.Kind, strings.Join(p.LayerIDs, ","), vertices, segments, primitives, len(p.Symbols))
	}
	tw.Flush()
}
