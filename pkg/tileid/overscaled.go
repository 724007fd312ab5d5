package tileid

import (
	"fmt"
)

// CacheKey identifies an OverscaledTileID or UnwrappedTileID in maps.
//
// Folding wrap and overscaled zoom into a single 64-bit integer on top of
// the 55-bit canonical key cannot be done injectively for every wrap value,
// so the key is a comparable struct instead.
type CacheKey struct {
	Wrap        int32
	OverscaledZ uint8
	Canonical   uint64
}

// String returns "wrap/overscaledZ/canonicalKey".
func (k CacheKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Wrap, k.OverscaledZ, k.Canonical)
}

// OverscaledTileID references a canonical tile rendered at OverscaledZ in
// world copy Wrap.
type OverscaledTileID struct {
	OverscaledZ uint8
	Wrap        int32
	Canonical   CanonicalTileID
}

// NewOverscaledTileID validates and returns an overscaled tile id.
func NewOverscaledTileID(overscaledZ uint8, wrap int32, z uint8, x, y uint32) (OverscaledTileID, error) {
	c, err := NewCanonicalTileID(z, x, y)
	if err != nil {
		return OverscaledTileID{}, err
	}
	if overscaledZ < z {
		return OverscaledTileID{}, &ErrInvalidTileID{Z: z, X: x, Y: y, Reason: fmt.Sprintf("overscaled zoom %d below canonical zoom", overscaledZ)}
	}
	return OverscaledTileID{OverscaledZ: overscaledZ, Wrap: wrap, Canonical: c}, nil
}

// MustOverscaled is NewOverscaledTileID for constant coordinates.
func MustOverscaled(overscaledZ uint8, wrap int32, z uint8, x, y uint32) OverscaledTileID {
	id, err := NewOverscaledTileID(overscaledZ, wrap, z, x, y)
	if err != nil {
		panic(err)
	}
	return id
}

// Key returns the cache key of the tile.
func (o OverscaledTileID) Key() CacheKey {
	return CacheKey{Wrap: o.Wrap, OverscaledZ: o.OverscaledZ, Canonical: o.Canonical.Key()}
}

// Equals compares all three components.
func (o OverscaledTileID) Equals(other OverscaledTileID) bool {
	return o == other
}

// String returns "overscaledZ/x/y". The wrap is intentionally absent.
func (o OverscaledTileID) String() string {
	return fmt.Sprintf("%d/%d/%d", o.OverscaledZ, o.Canonical.X, o.Canonical.Y)
}

// OverscaleFactor is 2^(overscaledZ - z).
func (o OverscaledTileID) OverscaleFactor() int {
	return 1 << (o.OverscaledZ - o.Canonical.Z)
}

// ScaledTo returns the id of the tile covering this one at targetZ, which
// must not exceed OverscaledZ. Above the canonical zoom the canonical tile is
// kept and only the overscaled zoom changes.
func (o OverscaledTileID) ScaledTo(targetZ uint8) OverscaledTileID {
	if targetZ > o.OverscaledZ {
		panic(fmt.Sprintf("tileid: ScaledTo(%d) above overscaled zoom %d", targetZ, o.OverscaledZ))
	}
	if targetZ > o.Canonical.Z {
		return OverscaledTileID{OverscaledZ: targetZ, Wrap: o.Wrap, Canonical: o.Canonical}
	}
	d := o.Canonical.Z - targetZ
	return OverscaledTileID{
		OverscaledZ: targetZ,
		Wrap:        o.Wrap,
		Canonical:   CanonicalTileID{Z: targetZ, X: o.Canonical.X >> d, Y: o.Canonical.Y >> d},
	}
}

// IsChildOf reports whether o is a descendant of parent in the same world copy.
func (o OverscaledTileID) IsChildOf(parent OverscaledTileID) bool {
	if parent.Wrap != o.Wrap {
		return false
	}
	if parent.OverscaledZ == 0 {
		return true
	}
	if parent.OverscaledZ >= o.OverscaledZ || parent.Canonical.Z > o.Canonical.Z {
		return false
	}
	d := o.Canonical.Z - parent.Canonical.Z
	return parent.Canonical.X == o.Canonical.X>>d && parent.Canonical.Y == o.Canonical.Y>>d
}

// Children returns the ids one overscaled zoom down. At or beyond the
// source's max zoom the data cannot be split, so a single overscaled copy is
// returned.
func (o OverscaledTileID) Children(sourceMaxZoom uint8) []OverscaledTileID {
	if o.OverscaledZ >= sourceMaxZoom {
		return []OverscaledTileID{{OverscaledZ: o.OverscaledZ + 1, Wrap: o.Wrap, Canonical: o.Canonical}}
	}
	kids := o.Canonical.Children()
	out := make([]OverscaledTileID, len(kids))
	for i, c := range kids {
		out[i] = OverscaledTileID{OverscaledZ: o.OverscaledZ + 1, Wrap: o.Wrap, Canonical: c}
	}
	return out
}

// IsLessThan orders ids by wrap, overscaled zoom, x, then y.
func (o OverscaledTileID) IsLessThan(rhs OverscaledTileID) bool {
	if o.Wrap != rhs.Wrap {
		return o.Wrap < rhs.Wrap
	}
	if o.OverscaledZ != rhs.OverscaledZ {
		return o.OverscaledZ < rhs.OverscaledZ
	}
	if o.Canonical.X != rhs.Canonical.X {
		return o.Canonical.X < rhs.Canonical.X
	}
	return o.Canonical.Y < rhs.Canonical.Y
}

// Wrapped returns the same tile in the primary world copy.
func (o OverscaledTileID) Wrapped() OverscaledTileID {
	o.Wrap = 0
	return o
}

// UnwrapTo returns the same tile in world copy wrap.
func (o OverscaledTileID) UnwrapTo(wrap int32) OverscaledTileID {
	o.Wrap = wrap
	return o
}

// ToUnwrapped drops the overscale information.
func (o OverscaledTileID) ToUnwrapped() UnwrappedTileID {
	return UnwrappedTileID{Wrap: o.Wrap, Canonical: o.Canonical}
}

// UnwrappedTileID is a canonical tile placed in a specific world copy.
type UnwrappedTileID struct {
	Wrap      int32
	Canonical CanonicalTileID
}

// Key returns a cache key with the overscaled zoom equal to the canonical zoom.
func (u UnwrappedTileID) Key() CacheKey {
	return CacheKey{Wrap: u.Wrap, OverscaledZ: u.Canonical.Z, Canonical: u.Canonical.Key()}
}

// Equals compares wrap and canonical id.
func (u UnwrappedTileID) Equals(o UnwrappedTileID) bool {
	return u == o
}

// String returns "wrap/z/x/y".
func (u UnwrappedTileID) String() string {
	return fmt.Sprintf("%d/%s", u.Wrap, u.Canonical)
}
