package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/beetlebugorg/vtgeom/pkg/tile"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
)

func main() {
	// Keep at most 4 tiles; unload whatever falls out
	cache := tile.NewCache(4, func(t *tile.Tile) {
		fmt.Printf("  dropped %s\n", t.ID)
		t.UnloadVectorData()
	})

	for x := uint32(0); x < 6; x++ {
		cache.Add(tile.New(tileid.MustOverscaled(3, 0, 3, x, 2), ""))
	}
	fmt.Printf("Cached: %v\n", cache.Keys())

	// Reuse a cached tile instead of parsing it again
	id := tileid.MustOverscaled(3, 0, 3, 5, 2)
	if t := cache.GetAndRemove(id); t != nil {
		fmt.Printf("Reused %s\n", t.ID)
	}

	// Tiles with HTTP expiry leave the cache when their data goes stale
	header := http.Header{"Cache-Control": []string{"max-age=1"}}
	t := tile.New(tileid.MustOverscaled(3, 0, 3, 7, 7), "")
	t.SetExpiryData(header, time.Now())
	if timeout, ok := t.ExpiryTimeout(time.Now()); ok {
		cache.AddWithTimeout(t, timeout)
	}
	time.Sleep(1500 * time.Millisecond)

	stats := cache.Stats()
	fmt.Printf("Entries: %d, evicted: %d, expired: %d\n", stats.Entries, stats.Evictions, stats.Expired)
}
