package tileid

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewCanonicalTileIDValidation(t *testing.T) {
	tests := []struct {
		name    string
		z       uint8
		x, y    uint32
		wantErr bool
	}{
		{name: "root", z: 0, x: 0, y: 0},
		{name: "max zoom corner", z: 25, x: 1<<25 - 1, y: 1<<25 - 1},
		{name: "zoom too deep", z: 26, x: 0, y: 0, wantErr: true},
		{name: "x out of range", z: 2, x: 4, y: 0, wantErr: true},
		{name: "y out of range", z: 2, x: 0, y: 4, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCanonicalTileID(tt.z, tt.x, tt.y)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCanonicalTileID(%d,%d,%d) error = %v, wantErr %v", tt.z, tt.x, tt.y, err, tt.wantErr)
			}
		})
	}
}

func TestCanonicalKeyInjective(t *testing.T) {
	seen := make(map[uint64]CanonicalTileID)
	for z := uint8(0); z <= 6; z++ {
		for x := uint32(0); x < 1<<z; x++ {
			for y := uint32(0); y < 1<<z; y++ {
				id := MustCanonical(z, x, y)
				if prev, ok := seen[id.Key()]; ok {
					t.Fatalf("key collision between %v and %v", prev, id)
				}
				seen[id.Key()] = id
			}
		}
	}

	// The corners of the deepest zoom must not spill past 55 bits.
	max := MustCanonical(MaxZoom, 1<<25-1, 1<<25-1)
	if max.Key()>>55 != 0 {
		t.Errorf("key %x uses more than 55 bits", max.Key())
	}
	if MustCanonical(25, 1, 0).Key() == MustCanonical(25, 0, 1).Key() {
		t.Error("x and y must occupy distinct bit ranges")
	}
}

func TestOverscaledCacheKeyDistinguishesWrapAndOverscale(t *testing.T) {
	ids := []OverscaledTileID{
		MustOverscaled(3, 0, 3, 1, 2),
		MustOverscaled(4, 0, 3, 1, 2),
		MustOverscaled(3, 1, 3, 1, 2),
		MustOverscaled(3, -1, 3, 1, 2),
		MustOverscaled(4, -1, 3, 1, 2),
		MustOverscaled(3, 1<<20, 3, 1, 2),
	}
	keys := make(map[CacheKey]OverscaledTileID)
	for _, id := range ids {
		if prev, ok := keys[id.Key()]; ok {
			t.Errorf("cache key collision between %v (wrap %d) and %v (wrap %d)", prev, prev.Wrap, id, id.Wrap)
		}
		keys[id.Key()] = id
	}
}

func TestOverscaledString(t *testing.T) {
	id := MustOverscaled(5, 2, 3, 1, 6)
	if got := id.String(); got != "5/1/6" {
		t.Errorf("String() = %q, want %q", got, "5/1/6")
	}
	if got := id.Canonical.String(); got != "3/1/6" {
		t.Errorf("Canonical.String() = %q, want %q", got, "3/1/6")
	}
}

func TestScaledTo(t *testing.T) {
	id := MustOverscaled(4, 0, 4, 9, 5)

	if diff := cmp.Diff(MustOverscaled(2, 0, 2, 2, 1), id.ScaledTo(2)); diff != "" {
		t.Errorf("ScaledTo(2) mismatch (-want +got):\n%s", diff)
	}

	over := MustOverscaled(6, 0, 4, 9, 5)
	if diff := cmp.Diff(MustOverscaled(5, 0, 4, 9, 5), over.ScaledTo(5)); diff != "" {
		t.Errorf("ScaledTo(5) mismatch (-want +got):\n%s", diff)
	}
}

func TestChildren(t *testing.T) {
	id := MustOverscaled(2, 0, 2, 1, 1)
	got := id.Children(10)
	want := []OverscaledTileID{
		MustOverscaled(3, 0, 3, 2, 2),
		MustOverscaled(3, 0, 3, 3, 2),
		MustOverscaled(3, 0, 3, 2, 3),
		MustOverscaled(3, 0, 3, 3, 3),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Children mismatch (-want +got):\n%s", diff)
	}

	atMax := MustOverscaled(10, 0, 10, 3, 3).Children(10)
	if diff := cmp.Diff([]OverscaledTileID{MustOverscaled(11, 0, 10, 3, 3)}, atMax); diff != "" {
		t.Errorf("Children at source max zoom mismatch (-want +got):\n%s", diff)
	}
}

func TestIsChildOf(t *testing.T) {
	parent := MustOverscaled(2, 0, 2, 1, 1)
	for _, child := range parent.Children(10) {
		if !child.IsChildOf(parent) {
			t.Errorf("%v should be a child of %v", child, parent)
		}
	}
	if MustOverscaled(3, 1, 3, 2, 2).IsChildOf(parent) {
		t.Error("tiles in different world copies are never related")
	}
	if MustOverscaled(3, 0, 3, 0, 0).IsChildOf(parent) {
		t.Error("tile outside the parent's footprint is not a child")
	}
	if !MustOverscaled(5, 0, 5, 31, 31).IsChildOf(MustOverscaled(0, 0, 0, 0, 0)) {
		t.Error("every tile in wrap 0 descends from the root")
	}
}

func TestIsLessThan(t *testing.T) {
	ordered := []OverscaledTileID{
		MustOverscaled(2, -1, 2, 3, 3),
		MustOverscaled(1, 0, 1, 1, 1),
		MustOverscaled(2, 0, 2, 0, 3),
		MustOverscaled(2, 0, 2, 1, 0),
		MustOverscaled(2, 0, 2, 1, 2),
		MustOverscaled(0, 1, 0, 0, 0),
	}
	for i := 0; i < len(ordered)-1; i++ {
		a, b := ordered[i], ordered[i+1]
		if !a.IsLessThan(b) {
			t.Errorf("expected %v (wrap %d) < %v (wrap %d)", a, a.Wrap, b, b.Wrap)
		}
		if b.IsLessThan(a) {
			t.Errorf("expected !(%v < %v)", b, a)
		}
	}
	if ordered[0].IsLessThan(ordered[0]) {
		t.Error("IsLessThan must be irreflexive")
	}
}

func TestQuadkeyAndURL(t *testing.T) {
	id := MustCanonical(3, 3, 5)
	if got := id.Quadkey(); got != "213" {
		t.Errorf("Quadkey() = %q, want %q", got, "213")
	}
	got := id.URL("https://tiles/{z}/{x}/{y}.pbf?q={quadkey}&p={prefix}", "xyz")
	if want := "https://tiles/3/3/5.pbf?q=213&p=35"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
	if got := id.URL("{z}/{x}/{y}", "tms"); got != "3/3/2" {
		t.Errorf("URL(tms) = %q, want %q", got, "3/3/2")
	}
	if got := MustCanonical(0, 0, 0).URL("{bbox-epsg-3857}", ""); got == "" {
		t.Error("expected bbox expansion")
	}
}

func TestHilbertID(t *testing.T) {
	if got := MustCanonical(0, 0, 0).HilbertID(); got != 0 {
		t.Errorf("root HilbertID() = %d, want 0", got)
	}

	// Each zoom level occupies a contiguous id range following all lower levels.
	seen := make(map[uint64]bool)
	for z := uint8(0); z <= 5; z++ {
		lower := (uint64(1)<<(2*uint64(z)) - 1) / 3
		upper := lower + uint64(1)<<(2*uint64(z))
		for x := uint32(0); x < 1<<z; x++ {
			for y := uint32(0); y < 1<<z; y++ {
				id := MustCanonical(z, x, y).HilbertID()
				if id < lower || id >= upper {
					t.Fatalf("%d/%d/%d: id %d outside [%d,%d)", z, x, y, id, lower, upper)
				}
				if seen[id] {
					t.Fatalf("%d/%d/%d: duplicate id %d", z, x, y, id)
				}
				seen[id] = true
			}
		}
	}
}

func TestUnwrapped(t *testing.T) {
	o := MustOverscaled(6, -2, 4, 1, 1)
	u := o.ToUnwrapped()
	if u.Wrap != -2 || u.Canonical != o.Canonical {
		t.Errorf("ToUnwrapped() = %+v", u)
	}
	if u.Key() == o.Key() {
		t.Error("unwrapped key ignores overscale and must differ from an overscaled tile's key")
	}
	if u.String() != "-2/4/1/1" {
		t.Errorf("String() = %q", u.String())
	}
}
