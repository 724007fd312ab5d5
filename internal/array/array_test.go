package array

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestLayoutSizes(t *testing.T) {
	tests := []struct {
		layout *Layout
		want   int
	}{
		{PosLayout, 4},
		{LineLayout, 8},
		{FillExtrusionLayout, 12},
		{TriangleLayout, 6},
		{LineIndexLayout, 4},
		{FeatureIndexLayout, 8},
		{CollisionBoxLayout, 20},
		{PaintLayout("a_color", 2), 8},
	}
	for _, tt := range tests {
		if tt.layout.Size != tt.want {
			t.Errorf("%s: size = %d, want %d", tt.layout.Name, tt.layout.Size, tt.want)
		}
	}
}

func TestLayoutAlignsMembers(t *testing.T) {
	l := NewLayout("mixed", 1,
		Attribute{Name: "a", Type: Uint8, Components: 1},
		Attribute{Name: "b", Type: Float32, Components: 1})
	b, ok := l.Attribute("b")
	require.True(t, ok)
	require.Equal(t, 4, b.Offset)
	require.Equal(t, 8, l.Size)

	_, ok = l.Attribute("missing")
	require.False(t, ok)
}

func TestPosArrayEmplace(t *testing.T) {
	a := NewPosArray()
	for i := 0; i < 300; i++ {
		idx := a.EmplaceBack(int16(i), int16(-i))
		require.Equal(t, i, idx)
	}
	require.Equal(t, 300, a.Len())
	require.Len(t, a.Bytes(), 300*4)

	x, y := a.At(257)
	require.Equal(t, int16(257), x)
	require.Equal(t, int16(-257), y)

	a.Clear()
	require.Zero(t, a.Len())
	require.Empty(t, a.Bytes())
}

func TestLineLayoutArray(t *testing.T) {
	a := NewLineLayoutArray()
	a.EmplaceBack(10, 21, 191, 128, 5, 1)
	x, y, data := a.At(0)
	require.Equal(t, int16(10), x)
	require.Equal(t, int16(21), y)
	if diff := cmp.Diff([4]uint8{191, 128, 5, 1}, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestIndexArrays(t *testing.T) {
	tri := NewTriangleIndexArray()
	tri.EmplaceBack(0, 1, 2)
	tri.EmplaceBack(0, 3, MaxIndex)
	require.Equal(t, [3]uint16{0, 3, 65535}, tri.At(1))

	lines := NewLineIndexArray()
	lines.EmplaceBack(4, 5)
	require.Equal(t, [2]uint16{4, 5}, lines.At(0))
}

func TestFeatureIndexArray(t *testing.T) {
	a := NewFeatureIndexArray()
	a.EmplaceBack(70000, 3, 9)
	require.Equal(t, FeatureIndexEntry{FeatureIndex: 70000, SourceLayerIndex: 3, BucketIndex: 9}, a.At(0))
}

func TestCollisionBoxArray(t *testing.T) {
	a := NewCollisionBoxArray()
	want := CollisionBox{AnchorX: 1, AnchorY: 2, X1: -3, Y1: -4, X2: 5, Y2: 6, FeatureIndex: 7, SourceLayerIndex: 8, BucketIndex: 9}
	a.EmplaceBack(want)
	if diff := cmp.Diff(want, a.At(0)); diff != "" {
		t.Errorf("collision box mismatch (-want +got):\n%s", diff)
	}
}

func TestPaintArrayFill(t *testing.T) {
	a := NewPaintArray("a_color", 2)
	a.Fill(0, 3, 0.5, 1)
	a.Fill(3, 4, 2, 3)
	require.Equal(t, 4, a.Len())
	require.Equal(t, []float32{0.5, 1}, a.At(2))
	require.Equal(t, []float32{2, 3}, a.At(3))
}

func TestFromBytesRoundTrip(t *testing.T) {
	a := NewFillExtrusionLayoutArray()
	a.EmplaceBack(1, 2, 3, 4, 5, 6)
	a.EmplaceBack(-1, -2, -3, -4, -5, -6)

	s, err := FromBytes(FillExtrusionLayout, append([]byte(nil), a.Bytes()...))
	require.NoError(t, err)
	b := WrapFillExtrusion(s)
	require.Equal(t, 2, b.Len())
	require.Equal(t, [6]int16{-1, -2, -3, -4, -5, -6}, b.At(1))

	_, err = FromBytes(FillExtrusionLayout, make([]byte, 13))
	require.Error(t, err)
}

func TestAtOutOfRangePanics(t *testing.T) {
	a := NewPosArray()
	require.Panics(t, func() { a.At(0) })
}

func TestTrimKeepsContents(t *testing.T) {
	a := NewPosArray()
	a.EmplaceBack(7, 8)
	a.Trim()
	x, y := a.At(0)
	require.Equal(t, int16(7), x)
	require.Equal(t, int16(8), y)
	require.Equal(t, 4, cap(a.data))
}
