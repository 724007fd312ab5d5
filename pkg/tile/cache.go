package tile

import (
	"container/list"
	"sync"
	"time"

	"github.com/beetlebugorg/vtgeom/internal/logging"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
)

// Cache keeps recently used tiles and evicts the oldest insertion first.
//
// Adding a tile whose key is already cached keeps both: each key holds a
// FIFO of entries, Get answers with the oldest and GetAndRemove takes it.
// Every entry counts towards the size limit.
//
// Example:
//
//	cache := tile.NewCache(64, func(t *tile.Tile) { t.UnloadVectorData() })
//	cache.Add(t)
//	if t := cache.GetAndRemove(id); t != nil {
//	    // reuse t
//	}
type Cache struct {
	mu       sync.Mutex
	max      int
	data     map[tileid.CacheKey][]*cacheEntry
	order    *list.List // oldest entry at front
	onRemove func(*Tile)

	evictions int
	expired   int
}

// cacheEntry is one cached tile and its position in the insertion order.
type cacheEntry struct {
	key     tileid.CacheKey
	tile    *Tile
	element *list.Element
	timer   *time.Timer
}

// NewCache returns a cache holding at most size tiles; a negative size is
// treated as zero. onRemove, if set, is called with each tile the cache
// drops on its own: evicted, expired, removed or reset. It is not called
// for GetAndRemove.
func NewCache(size int, onRemove func(*Tile)) *Cache {
	return &Cache{
		max:      max(size, 0),
		data:     make(map[tileid.CacheKey][]*cacheEntry),
		order:    list.New(),
		onRemove: onRemove,
	}
}

// Add caches a tile under its id's key, evicting the oldest entry if the
// cache grows past its limit.
func (c *Cache) Add(t *Tile) {
	c.add(t, 0)
}

// AddWithTimeout caches a tile that is dropped after timeout, unless it is
// taken out before.
func (c *Cache) AddWithTimeout(t *Tile, timeout time.Duration) {
	c.add(t, timeout)
}

func (c *Cache) add(t *Tile, timeout time.Duration) {
	var removed []*Tile

	c.mu.Lock()
	e := &cacheEntry{key: t.ID.Key(), tile: t}
	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() { c.expire(e) })
	}
	c.data[e.key] = append(c.data[e.key], e)
	e.element = c.order.PushBack(e)

	for c.order.Len() > c.max {
		removed = append(removed, c.removeEntry(c.order.Front().Value.(*cacheEntry)))
		c.evictions++
	}
	c.mu.Unlock()

	c.notify(removed, "evicted tiles")
}

func (c *Cache) expire(e *cacheEntry) {
	c.mu.Lock()
	if e.element == nil {
		c.mu.Unlock()
		return
	}
	t := c.removeEntry(e)
	c.expired++
	c.mu.Unlock()

	c.notify([]*Tile{t}, "expired tile")
}

// removeEntry unlinks an entry. Must be called with c.mu held.
func (c *Cache) removeEntry(e *cacheEntry) *Tile {
	if e.timer != nil {
		e.timer.Stop()
	}
	c.order.Remove(e.element)
	e.element = nil

	entries := c.data[e.key]
	for i, other := range entries {
		if other == e {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(c.data, e.key)
	} else {
		c.data[e.key] = entries
	}
	return e.tile
}

// notify calls onRemove outside the lock, so the callback may use the
// cache.
func (c *Cache) notify(tiles []*Tile, msg string) {
	if len(tiles) == 0 {
		return
	}
	if c.onRemove != nil {
		for _, t := range tiles {
			c.onRemove(t)
		}
	}
	logging.Logger().Debug(msg, "count", len(tiles), "first", tiles[0].ID.String())
}

// Has reports whether a tile with the id's key is cached.
func (c *Cache) Has(id tileid.OverscaledTileID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[id.Key()]
	return ok
}

// Get returns the oldest tile cached under the id's key, leaving it in
// the cache, or nil.
func (c *Cache) Get(id tileid.OverscaledTileID) *Tile {
	return c.GetByKey(id.Key())
}

// GetByKey is Get for a cache key.
func (c *Cache) GetByKey(key tileid.CacheKey) *Tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entries, ok := c.data[key]; ok {
		return entries[0].tile
	}
	return nil
}

// GetAndRemove takes the oldest tile cached under the id's key out of the
// cache, or returns nil. onRemove is not called.
func (c *Cache) GetAndRemove(id tileid.OverscaledTileID) *Tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.data[id.Key()]
	if !ok {
		return nil
	}
	return c.removeEntry(entries[0])
}

// Remove drops the oldest tile cached under the id's key, calling
// onRemove.
func (c *Cache) Remove(id tileid.OverscaledTileID) {
	c.mu.Lock()
	entries, ok := c.data[id.Key()]
	var removed []*Tile
	if ok {
		removed = append(removed, c.removeEntry(entries[0]))
	}
	c.mu.Unlock()

	c.notify(removed, "removed tile")
}

// Filter drops every tile for which keep returns false, calling onRemove.
func (c *Cache) Filter(keep func(*Tile) bool) {
	var removed []*Tile
	c.mu.Lock()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(*cacheEntry); !keep(e.tile) {
			removed = append(removed, c.removeEntry(e))
		}
		el = next
	}
	c.mu.Unlock()

	c.notify(removed, "filtered tiles")
}

// SetMaxSize changes the limit, evicting the oldest entries until the
// cache fits. A negative size is treated as zero.
func (c *Cache) SetMaxSize(size int) {
	var removed []*Tile
	c.mu.Lock()
	c.max = max(size, 0)
	for c.order.Len() > c.max {
		removed = append(removed, c.removeEntry(c.order.Front().Value.(*cacheEntry)))
		c.evictions++
	}
	c.mu.Unlock()

	c.notify(removed, "evicted tiles")
}

// Reset drops every tile, calling onRemove for each.
func (c *Cache) Reset() {
	var removed []*Tile
	c.mu.Lock()
	for c.order.Len() > 0 {
		removed = append(removed, c.removeEntry(c.order.Front().Value.(*cacheEntry)))
	}
	c.mu.Unlock()

	c.notify(removed, "reset tile cache")
}

// Keys returns the key of every entry, oldest first. A key cached twice
// appears twice.
func (c *Cache) Keys() []tileid.CacheKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]tileid.CacheKey, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*cacheEntry).key)
	}
	return keys
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   c.order.Len(),
		Keys:      len(c.data),
		MaxSize:   c.max,
		Evictions: c.evictions,
		Expired:   c.expired,
	}
}

// CacheStats holds cache counters.
type CacheStats struct {
	Entries   int // Number of cached entries
	Keys      int // Number of distinct keys
	MaxSize   int // Entry limit
	Evictions int // Entries dropped for size since creation
	Expired   int // Entries dropped by their timeout
}
