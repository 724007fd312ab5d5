// Package geometry holds the tile-space geometry used by the buckets and the
// feature index: loading and rescaling feature rings, ring classification,
// polygon triangulation and the hit-test primitives used by queries.
package geometry

import (
	"fmt"
	"math"

	"github.com/beetlebugorg/vtgeom/internal/logging"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

// Extent is the side length of the square integer coordinate space every
// tile's geometry is normalized into.
const Extent = 8192

const (
	minCoord = math.MinInt16
	maxCoord = math.MaxInt16
)

// Point is an integer position in tile units.
type Point = vt.Coord

// Ring is a sequence of points: a polygon ring, a line, or a point group.
type Ring = vt.Ring

// Load materializes a feature's rings rescaled from the feature extent into
// Extent, rounding each coordinate to the nearest integer. Coordinates
// that no longer fit in int16 are kept and reported once.
func Load(f vt.Feature) []Ring {
	rings := f.LoadGeometry()
	extent := f.Extent()
	if extent <= 0 {
		extent = vt.DefaultExtent
	}
	scale := float64(Extent) / float64(extent)
	for _, ring := range rings {
		for i := range ring {
			p := &ring[i]
			x := int(math.Round(float64(p.X) * scale))
			y := int(math.Round(float64(p.Y) * scale))
			if x < minCoord || x > maxCoord || y < minCoord || y > maxCoord {
				logging.WarnOnce("Geometry exceeds allowed extent, reduce your vector tile buffer size")
			}
			p.X, p.Y = x, y
		}
	}
	return rings
}

// SignedArea returns twice the signed area of the ring. With y pointing
// down, clockwise rings are positive.
func SignedArea(ring Ring) int {
	sum := 0
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		p1, p2 := ring[i], ring[j]
		sum += (p2.X - p1.X) * (p1.Y + p2.Y)
	}
	return sum
}

// Box is an axis-aligned bounding box, inclusive on all sides.
type Box struct {
	MinX, MinY, MaxX, MaxY int
}

func (b Box) String() string {
	return fmt.Sprintf("[%d,%d %d,%d]", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Bounds returns the bounding box of a non-empty ring.
func Bounds(ring Ring) Box {
	b := Box{MinX: math.MaxInt, MinY: math.MaxInt, MaxX: math.MinInt, MaxY: math.MinInt}
	for _, p := range ring {
		b.MinX = min(b.MinX, p.X)
		b.MinY = min(b.MinY, p.Y)
		b.MaxX = max(b.MaxX, p.X)
		b.MaxY = max(b.MaxY, p.Y)
	}
	return b
}

// InTile reports whether the point lies in [0, Extent) on both axes.
func InTile(p Point) bool {
	return p.X >= 0 && p.X < Extent && p.Y >= 0 && p.Y < Extent
}
