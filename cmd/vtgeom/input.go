package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/beetlebugorg/vtgeom"
	"github.com/beetlebugorg/vtgeom/internal/source"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
)

// tileFlags select the style and the single tile a command works on.
type tileFlags struct {
	stylePath  string
	tilePath   string
	mbtiles    string
	sourceName string
	sprites    string
	z, x, y    uint
	verbose    bool
}

func (f *tileFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.stylePath, "style", "", "Style JSON path")
	fs.StringVar(&f.tilePath, "tile", "", "Encoded vector tile path")
	fs.StringVar(&f.mbtiles, "mbtiles", "", "MBTiles path, read instead of -tile")
	fs.StringVar(&f.sourceName, "source", "", "Style source of the tile (defaults to the first source)")
	fs.StringVar(&f.sprites, "sprites", "", "Directory of <name>.png icons and patterns")
	fs.UintVar(&f.z, "z", 0, "Tile zoom")
	fs.UintVar(&f.x, "x", 0, "Tile column")
	fs.UintVar(&f.y, "y", 0, "Tile row (XYZ)")
	fs.BoolVar(&f.verbose, "v", false, "Log debug output to stderr")
}

// setupLogging routes library logs to stderr.
func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	vtgeom.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadStyle(path string) (*style.Style, error) {
	if path == "" {
		return nil, errors.New("-style is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return style.Parse(data)
}

// sourceFor picks the style source a tile belongs to.
func sourceFor(name string, layers *style.LayerIndex) (string, error) {
	if name != "" {
		return name, nil
	}
	sources := layers.Sources()
	if len(sources) == 0 {
		return "", errors.New("style has no sourced layers")
	}
	return sources[0], nil
}

func (f *tileFlags) tileID() (tileid.OverscaledTileID, error) {
	if f.z > tileid.MaxZoom {
		return tileid.OverscaledTileID{}, fmt.Errorf("zoom %d exceeds %d", f.z, tileid.MaxZoom)
	}
	z := uint8(f.z)
	return tileid.NewOverscaledTileID(z, 0, z, uint32(f.x), uint32(f.y))
}

// readTile loads the encoded tile from -tile or -mbtiles.
func (f *tileFlags) readTile(ctx context.Context, id tileid.OverscaledTileID) ([]byte, error) {
	switch {
	case f.tilePath != "":
		return os.ReadFile(f.tilePath)
	case f.mbtiles != "":
		m, err := source.Open(f.mbtiles)
		if err != nil {
			return nil, err
		}
		defer m.Close()
		data, err := m.ReadTile(ctx, id.Canonical)
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, fmt.Errorf("tile %s not found in %s", id.Canonical, f.mbtiles)
		}
		return data, nil
	default:
		return nil, errors.New("one of -tile or -mbtiles is required")
	}
}
