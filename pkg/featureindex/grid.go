package featureindex

import (
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/beetlebugorg/vtgeom/internal/geometry"
)

// gridEntry is one ring bounding box stored under a feature key.
type gridEntry struct {
	key int
	box geometry.Box
}

// Bounds implements rtreego.Spatial. The box is grown by half a unit on
// every side so that boxes touching the query edge, and zero-area boxes,
// are still found; callers re-check inclusively.
func (e *gridEntry) Bounds() rtreego.Rect {
	point := rtreego.Point{float64(e.box.MinX) - 0.5, float64(e.box.MinY) - 0.5}
	lengths := []float64{
		float64(e.box.MaxX-e.box.MinX) + 1,
		float64(e.box.MaxY-e.box.MinY) + 1,
	}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

// grid is a spatial index over integer keys backed by an R-tree.
type grid struct {
	rtree   *rtreego.Rtree
	entries []*gridEntry
}

func newGrid() *grid {
	// 2D, min=25 children, max=50 children
	return &grid{rtree: rtreego.NewTree(2, 25, 50)}
}

// restoreGrid bulk-loads a grid from saved entries.
func restoreGrid(saved []GridEntry) *grid {
	entries := make([]*gridEntry, len(saved))
	objs := make([]rtreego.Spatial, len(saved))
	for i, e := range saved {
		entries[i] = &gridEntry{key: e.Key, box: e.Box}
		objs[i] = entries[i]
	}
	return &grid{rtree: rtreego.NewTree(2, 25, 50, objs...), entries: entries}
}

func (g *grid) export() []GridEntry {
	out := make([]GridEntry, len(g.entries))
	for i, e := range g.entries {
		out[i] = GridEntry{Key: e.key, Box: e.box}
	}
	return out
}

func (g *grid) insert(key int, box geometry.Box) {
	e := &gridEntry{key: key, box: box}
	g.entries = append(g.entries, e)
	g.rtree.Insert(e)
}

// query returns the keys of every box intersecting [minX,maxX]x[minY,maxY],
// inclusive. A key appears once per matching ring. accept, if set, refines
// each candidate.
func (g *grid) query(minX, minY, maxX, maxY float64, accept func(geometry.Box) bool) []int {
	if len(g.entries) == 0 {
		return nil
	}
	point := rtreego.Point{minX - 0.5, minY - 0.5}
	lengths := []float64{maxX - minX + 1, maxY - minY + 1}
	queryRect, err := rtreego.NewRect(point, lengths)
	if err != nil {
		return nil
	}

	spatials := g.rtree.SearchIntersect(queryRect)
	keys := make([]int, 0, len(spatials))
	for _, s := range spatials {
		e := s.(*gridEntry)
		b := e.box
		if minX > float64(b.MaxX) || minY > float64(b.MaxY) || maxX < float64(b.MinX) || maxY < float64(b.MinY) {
			continue
		}
		if accept != nil && !accept(b) {
			continue
		}
		keys = append(keys, e.key)
	}
	return keys
}

// topDown orders keys so later insertions come first.
func topDown(keys []int) {
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))
}
