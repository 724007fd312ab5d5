package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tile"
)

type queryCmd struct {
	tileFlags
	at          string
	radius      float64
	sourceLayer string
	filter      string
}

func (c *queryCmd) Name() string     { return "query" }
func (c *queryCmd) Synopsis() string { return "query the features of a compiled tile as GeoJSON" }
func (c *queryCmd) Usage() string {
	return `vtgeom query -style <path> (-tile <path> | -mbtiles <path>) -z <z> -x <x> -y <y> -at <x,y> [-radius <units>]
vtgeom query -style <path> (-tile <path> | -mbtiles <path>) -z <z> -x <x> -y <y> -source-layer <name> [-filter <json>]
`
}
func (c *queryCmd) SetFlags(f *flag.FlagSet) {
	c.tileFlags.register(f)
	f.StringVar(&c.at, "at", "", "Rendered-features query point in tile units, as x,y")
	f.Float64Var(&c.radius, "radius", 0, "Grow the query point into a square of this half-size")
	f.StringVar(&c.sourceLayer, "source-layer", "", "Return every feature of this source layer instead")
	f.StringVar(&c.filter, "filter", "", "Style filter expression for -source-layer")
}

func (c *queryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	setupLogging(c.verbose)
	if (c.at == "") == (c.sourceLayer == "") {
		log.Println("exactly one of -at or -source-layer is required")
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
	lookup := evaluator(s, float64(t.ID.OverscaledZ))
	t.LoadVectorData(res, lookup, false)

	var features []*geojson.Feature
	if c.sourceLayer != "" {
		features, err = c.sourceFeatures(t)
	} else {
		features, err = c.renderedFeatures(t, s, lookup)
	}
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	fc := geojson.NewFeatureCollection()
	fc.Features = features
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fc); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *queryCmd) sourceFeatures(t *tile.Tile) ([]*geojson.Feature, error) {
	var filter *style.Filter
	if c.filter != "" {
		var err error
		if filter, err = style.ParseFilter(json.RawMessage(c.filter)); err != nil {
			return nil, fmt.Errorf("-filter: %w", err)
		}
	}
	return t.QuerySourceFeatures(c.sourceLayer, filter)
}

// renderedFeatures queries every style layer and tags each hit with its
// layer id, top-most layer first.
func (c *queryCmd) renderedFeatures(t *tile.Tile, s *style.Style, lookup func(string) *style.Evaluated) ([]*geojson.Feature, error) {
	var x, y float64
	if _, err := fmt.Sscanf(c.at, "%f,%f", &x, &y); err != nil {
		return nil, fmt.Errorf("-at %q: %w", c.at, err)
	}
	query := []orb.Point{{x, y}}
	if c.radius > 0 {
		r := c.radius
		query = []orb.Point{{x - r, y - r}, {x + r, y - r}, {x + r, y + r}, {x - r, y + r}, {x - r, y - r}}
	}

	layers := make(map[string]*style.Evaluated, len(s.Layers))
	for _, l := range s.Layers {
		layers[l.ID] = lookup(l.ID)
	}
	hits, err := t.QueryRenderedFeatures(layers, query, query, 1, tile.QueryParams{}, nil)
	if err != nil {
		return nil, err
	}

	var out []*geojson.Feature
	for i := len(s.Layers) - 1; i >= 0; i-- {
		id := s.Layers[i].ID
		for _, hit := range hits[id] {
			f := hit.Feature
			f.Properties["layer"] = id
			f.Properties["source-layer"] = hit.SourceLayer
			if hit.ID != nil {
				f.ID = hit.ID
			}
			out = append(out, f)
		}
	}
	return out, nil
}
