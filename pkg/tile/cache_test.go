package tile

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/vtgeom/pkg/tileid"
)

// removals records onRemove calls.
type removals struct {
	mu    sync.Mutex
	tiles []*Tile
}

func (r *removals) add(t *Tile) {
	r.mu.Lock()
	r.tiles = append(r.tiles, t)
	r.mu.Unlock()
}

func (r *removals) list() []*Tile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Tile(nil), r.tiles...)
}

func tileAt(x uint32) *Tile {
	return New(tileid.MustOverscaled(3, 0, 3, x, 0), "")
}

func TestCacheEvictsOldest(t *testing.T) {
	var removed removals
	cache := NewCache(1, removed.add)
	a, b := tileAt(1), tileAt(2)

	cache.Add(a)
	cache.Add(b)

	assert.Equal(t, []*Tile{a}, removed.list())
	assert.False(t, cache.Has(a.ID))
	assert.True(t, cache.Has(b.ID))
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 1, cache.Stats().Evictions)
}

func TestCacheDuplicateAdd(t *testing.T) {
	var removed removals
	cache := NewCache(10, removed.add)
	first, second := tileAt(1), tileAt(1)

	cache.Add(first)
	cache.Add(second)
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, []tileid.CacheKey{first.ID.Key(), first.ID.Key()}, cache.Keys())
	assert.Same(t, first, cache.Get(first.ID))

	assert.Same(t, first, cache.GetAndRemove(first.ID))
	assert.True(t, cache.Has(first.ID))
	assert.Same(t, second, cache.GetAndRemove(first.ID))
	assert.False(t, cache.Has(first.ID))
	assert.Nil(t, cache.GetAndRemove(first.ID))
	assert.Empty(t, removed.list(), "GetAndRemove does not call onRemove")
}

func TestCacheDuplicateEviction(t *testing.T) {
	cache := NewCache(2, nil)
	a1, b, a2 := tileAt(1), tileAt(2), tileAt(1)
	cache.Add(a1)
	cache.Add(b)
	cache.Add(a2)

	// a1 was oldest; a2 keeps the key alive.
	assert.True(t, cache.Has(a1.ID))
	assert.Same(t, a2, cache.Get(a1.ID))
	assert.Equal(t, []tileid.CacheKey{b.ID.Key(), a2.ID.Key()}, cache.Keys())
}

func TestCacheSetMaxSize(t *testing.T) {
	var removed removals
	cache := NewCache(5, removed.add)
	tiles := []*Tile{tileAt(1), tileAt(2), tileAt(3), tileAt(4)}
	for _, tile := range tiles {
		cache.Add(tile)
	}

	cache.SetMaxSize(1)
	assert.Equal(t, tiles[:3], removed.list())
	assert.Equal(t, []tileid.CacheKey{tiles[3].ID.Key()}, cache.Keys())

	cache.SetMaxSize(0)
	assert.Zero(t, cache.Len())
	cache.Add(tileAt(5))
	assert.Zero(t, cache.Len(), "a zero-size cache keeps nothing")
}

func TestCacheNegativeSize(t *testing.T) {
	tests := []struct {
		name  string
		cache func(*removals) *Cache
	}{
		{name: "constructed", cache: func(r *removals) *Cache { return NewCache(-1, r.add) }},
		{name: "resized", cache: func(r *removals) *Cache {
			c := NewCache(2, r.add)
			c.SetMaxSize(-3)
			return c
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var removed removals
			cache := tt.cache(&removed)
			a := tileAt(1)

			require.NotPanics(t, func() { cache.Add(a) })
			assert.Zero(t, cache.Len())
			assert.Equal(t, []*Tile{a}, removed.list())
		})
	}
}

func TestCacheRemoveAndReset(t *testing.T) {
	var removed removals
	cache := NewCache(5, removed.add)
	a, b, c := tileAt(1), tileAt(2), tileAt(3)
	cache.Add(a)
	cache.Add(b)
	cache.Add(c)

	cache.Remove(b.ID)
	cache.Remove(b.ID)
	assert.Equal(t, []*Tile{b}, removed.list())
	assert.Nil(t, cache.GetByKey(b.ID.Key()))
	assert.Same(t, c, cache.GetByKey(c.ID.Key()))

	cache.Reset()
	assert.Equal(t, []*Tile{b, a, c}, removed.list())
	assert.Zero(t, cache.Len())
	assert.Empty(t, cache.Keys())
}

func TestCacheFilter(t *testing.T) {
	var removed removals
	cache := NewCache(5, removed.add)
	for x := uint32(0); x < 4; x++ {
		cache.Add(tileAt(x))
	}
	cache.Filter(func(t *Tile) bool { return t.ID.Canonical.X%2 == 0 })

	assert.Equal(t, 2, cache.Len())
	require.Len(t, removed.list(), 2)
	for _, tile := range removed.list() {
		assert.Equal(t, uint32(1), tile.ID.Canonical.X%2)
	}
}

func TestCacheTimeout(t *testing.T) {
	var removed removals
	cache := NewCache(5, removed.add)
	expiring := tileAt(1)
	cache.AddWithTimeout(expiring, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return !cache.Has(expiring.ID) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []*Tile{expiring}, removed.list())
	assert.Equal(t, 1, cache.Stats().Expired)
}

func TestCacheTimeoutStoppedByRemoval(t *testing.T) {
	var removed removals
	cache := NewCache(5, removed.add)
	taken := tileAt(1)
	cache.AddWithTimeout(taken, 20*time.Millisecond)

	assert.Same(t, taken, cache.GetAndRemove(taken.ID))
	assert.Never(t, func() bool { return len(removed.list()) > 0 }, 60*time.Millisecond, 5*time.Millisecond)
	assert.Zero(t, cache.Stats().Expired)
}

func TestCacheOnRemoveMayUseCache(t *testing.T) {
	var cache *Cache
	var lenInCallback int
	cache = NewCache(1, func(*Tile) { lenInCallback = cache.Len() })
	cache.Add(tileAt(1))
	cache.Add(tileAt(2))
	assert.Equal(t, 1, lenInCallback)
}
