package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

// ErrTileNotLoaded is returned when reloading a tile the source does not
// hold.
var ErrTileNotLoaded = errors.New("worker: tile not loaded")

// Loader fetches the encoded data of a tile. A nil slice and nil error
// means the tile has no data.
type Loader func(ctx context.Context, id tileid.OverscaledTileID) ([]byte, error)

// Source loads and parses the tiles of one vector source, keeping parsed
// tiles by uid so they can be reparsed when the style changes.
type Source struct {
	Name string

	actor Actor
	load  Loader
	opts  Options

	mu      sync.Mutex
	layers  *style.LayerIndex
	loading map[string]*pending
	loaded  map[string]*Tile
}

type pending struct {
	cancel context.CancelFunc
}

// NewSource returns a source that fetches tiles with load.
func NewSource(name string, layers *style.LayerIndex, actor Actor, load Loader, opts Options) *Source {
	return &Source{
		Name:    name,
		actor:   actor,
		load:    load,
		opts:    opts,
		layers:  layers,
		loading: make(map[string]*pending),
		loaded:  make(map[string]*Tile),
	}
}

// SetLayers replaces the layer index used by later parses.
func (s *Source) SetLayers(layers *style.LayerIndex) {
	s.mu.Lock()
	s.layers = layers
	s.mu.Unlock()
}

func (s *Source) layerIndex() *style.LayerIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers
}

// LoadTile fetches, decodes and parses a tile. It returns nil and no error
// when the tile has no data. AbortTile cancels a load in progress.
func (s *Source) LoadTile(ctx context.Context, p TileParameters) (*Result, error) {
	p.Source = s.Name
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	job := &pending{cancel: cancel}
	s.mu.Lock()
	s.loading[p.UID] = job
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.loading[p.UID] == job {
			delete(s.loading, p.UID)
		}
		s.mu.Unlock()
	}()

	raw, err := s.load(ctx, p.TileID)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("load tile %s: %w", p.TileID, err)
	}

	tile := NewTile(p, s.opts)
	s.mu.Lock()
	s.loaded[p.UID] = tile
	s.mu.Unlock()

	if raw == nil {
		return tile.Parse(ctx, nil, nil, s.layerIndex(), s.actor)
	}
	data, err := vt.Decode(raw, s.Name)
	if err != nil {
		return nil, fmt.Errorf("load tile %s: %w", p.TileID, err)
	}
	return tile.Parse(ctx, data, raw, s.layerIndex(), s.actor)
}

// ReloadTile reparses a loaded tile with the current layers. A reload
// while the tile is still parsing waits for that parse.
func (s *Source) ReloadTile(ctx context.Context, uid string) (*Result, error) {
	s.mu.Lock()
	tile, ok := s.loaded[uid]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("reload %s: %w", uid, ErrTileNotLoaded)
	}
	return tile.Reparse(ctx, s.layerIndex(), s.actor)
}

// AbortTile cancels the load of a tile, if one is in progress.
func (s *Source) AbortTile(uid string) {
	s.mu.Lock()
	job, ok := s.loading[uid]
	delete(s.loading, uid)
	s.mu.Unlock()
	if ok {
		job.cancel()
	}
}

// RemoveTile forgets a loaded tile.
func (s *Source) RemoveTile(uid string) {
	s.mu.Lock()
	delete(s.loaded, uid)
	s.mu.Unlock()
}

// Loaded reports whether the source holds a tile.
func (s *Source) Loaded(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loaded[uid]
	return ok
}
