// Package tileid defines the tile coordinate types used across the
// compilation pipeline: canonical (z/x/y) tiles, overscaled tiles that render
// low-zoom data at a higher visual zoom, and unwrapped tiles that carry the
// horizontal world copy.
//
// All three are immutable value types. They are cheap to copy and are
// constructed wherever a tile reference is needed.
package tileid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/hilbert"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the deepest canonical zoom level a tile coordinate may have.
const MaxZoom = 25

// Key bit budget for CanonicalTileID.Key.
//
//	bits [0, 5)   z  (0..25 needs 5 bits)
//	bits [5, 30)  x  (x < 2^25)
//	bits [30, 55) y  (y < 2^25)
//
// The upper 9 bits are always zero.
const (
	zBits  = 5
	xyBits = MaxZoom
)

// CanonicalTileID identifies a tile in the XYZ scheme.
type CanonicalTileID struct {
	Z uint8
	X uint32
	Y uint32
}

// NewCanonicalTileID validates and returns a canonical tile id.
func NewCanonicalTileID(z uint8, x, y uint32) (CanonicalTileID, error) {
	if z > MaxZoom {
		return CanonicalTileID{}, &ErrInvalidTileID{Z: z, X: x, Y: y, Reason: "zoom exceeds 25"}
	}
	dim := uint64(1) << z
	if uint64(x) >= dim || uint64(y) >= dim {
		return CanonicalTileID{}, &ErrInvalidTileID{Z: z, X: x, Y: y, Reason: "x/y outside 0..2^z"}
	}
	return CanonicalTileID{Z: z, X: x, Y: y}, nil
}

// MustCanonical is NewCanonicalTileID for constant coordinates; it panics on
// invalid input.
func MustCanonical(z uint8, x, y uint32) CanonicalTileID {
	id, err := NewCanonicalTileID(z, x, y)
	if err != nil {
		panic(err)
	}
	return id
}

// Key packs (z, x, y) into an integer that is injective over the valid domain.
func (c CanonicalTileID) Key() uint64 {
	return uint64(c.Z) | uint64(c.X)<<zBits | uint64(c.Y)<<(zBits+xyBits)
}

// Equals reports whether both ids name the same tile.
func (c CanonicalTileID) Equals(o CanonicalTileID) bool {
	return c == o
}

// String returns "z/x/y".
func (c CanonicalTileID) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// Parent returns the tile one zoom level up. The root tile is its own parent.
func (c CanonicalTileID) Parent() CanonicalTileID {
	if c.Z == 0 {
		return c
	}
	return CanonicalTileID{Z: c.Z - 1, X: c.X >> 1, Y: c.Y >> 1}
}

// Children returns the four tiles one zoom level down.
func (c CanonicalTileID) Children() [4]CanonicalTileID {
	z, x, y := c.Z+1, c.X*2, c.Y*2
	return [4]CanonicalTileID{
		{Z: z, X: x, Y: y},
		{Z: z, X: x + 1, Y: y},
		{Z: z, X: x, Y: y + 1},
		{Z: z, X: x + 1, Y: y + 1},
	}
}

// Quadkey returns the Bing-style quadkey of the tile.
func (c CanonicalTileID) Quadkey() string {
	var b strings.Builder
	for z := c.Z; z > 0; z-- {
		mask := uint32(1) << (z - 1)
		digit := byte('0')
		if c.X&mask != 0 {
			digit++
		}
		if c.Y&mask != 0 {
			digit += 2
		}
		b.WriteByte(digit)
	}
	return b.String()
}

// HilbertID returns the PMTiles tile id: the position of the tile on the
// Hilbert curve of its zoom level, offset by the number of tiles on all
// lower zoom levels. Sorting by it keeps spatially close tiles together.
func (c CanonicalTileID) HilbertID() uint64 {
	h, _ := hilbert.NewHilbert(1 << c.Z)
	code, _ := h.MapInverse(int(c.X), int(c.Y))
	lower := (uint64(1)<<(uint64(c.Z)*2) - 1) / 3
	return uint64(code) + lower
}

// Maptile converts to the orb tile type.
func (c CanonicalTileID) Maptile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// Bound returns the geographic (WGS84) bounds of the tile.
func (c CanonicalTileID) Bound() orb.Bound {
	return c.Maptile().Bound()
}

// URL expands a tile URL template. Supported tokens: {z} {x} {y} {quadkey}
// {prefix} {bbox-epsg-3857}. With scheme "tms" the y axis is flipped.
func (c CanonicalTileID) URL(template, scheme string) string {
	y := c.Y
	if scheme == "tms" {
		y = (uint32(1) << c.Z) - c.Y - 1
	}
	r := strings.NewReplacer(
		"{prefix}", strconv.FormatUint(uint64(c.X%16), 16)+strconv.FormatUint(uint64(c.Y%16), 16),
		"{z}", strconv.Itoa(int(c.Z)),
		"{x}", strconv.FormatUint(uint64(c.X), 10),
		"{y}", strconv.FormatUint(uint64(y), 10),
		"{quadkey}", c.Quadkey(),
		"{bbox-epsg-3857}", c.mercatorBBox(),
	)
	return r.Replace(template)
}

func (c CanonicalTileID) mercatorBBox() string {
	const earthCircumference = 2 * math.Pi * 6378137
	y := float64(uint32(1)<<c.Z) - float64(c.Y) - 1
	res := earthCircumference / 256 / math.Pow(2, float64(c.Z))
	merc := func(px float64) float64 { return px*res - earthCircumference/2 }
	x := float64(c.X)
	return fmt.Sprintf("%s,%s,%s,%s",
		strconv.FormatFloat(merc(x*256), 'f', -1, 64),
		strconv.FormatFloat(merc(y*256), 'f', -1, 64),
		strconv.FormatFloat(merc((x+1)*256), 'f', -1, 64),
		strconv.FormatFloat(merc((y+1)*256), 'f', -1, 64),
	)
}
