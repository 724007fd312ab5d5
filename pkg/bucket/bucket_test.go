package bucket

import (
	"image"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/geometry"
	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/featureindex"
	"github.com/beetlebugorg/vtgeom/pkg/gpu"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

// evaluated parses a one-layer style and evaluates it at zoom 10.
func evaluated(t *testing.T, layerJSON string) *style.Evaluated {
	t.Helper()
	s, err := style.Parse([]byte(`{"version": 8, "layers": [` + layerJSON + `]}`))
	require.NoError(t, err)
	require.Len(t, s.Layers, 1)
	return s.Layers[0].Evaluate(style.EvaluationParameters{Zoom: 10})
}

func square(x, y, size int) vt.Ring {
	return vt.Ring{{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size}, {X: x, Y: y}}
}

func reversed(r vt.Ring) vt.Ring {
	out := make(vt.Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

func uid(v uint64) *uint64 { return &v }

// indexed wraps memory features the way the worker hands them to buckets.
// indexed wraps fixtures as bucket input. Features without an extent are
// placed in tile units.
func indexed(features ...*vt.MemoryFeature) []IndexedFeature {
	out := make([]IndexedFeature, len(features))
	for i, f := range features {
		if f.ExtentSize == 0 {
			f.ExtentSize = geometry.Extent
		}
		out[i] = IndexedFeature{Feature: f, Index: i}
		if id, ok := f.ID(); ok {
			out[i].ID = id
		}
	}
	return out
}

func point(id uint64, x, y int, props map[string]any) *vt.MemoryFeature {
	return &vt.MemoryFeature{GeomType: vt.Point, FeatureID: uid(id), Props: props,
		Rings: []vt.Ring{{{X: x, Y: y}}}, ExtentSize: geometry.Extent}
}

func newOptions() *Options {
	return NewOptions(featureindex.New(tileid.MustOverscaled(10, 0, 10, 0, 0), featureindex.PromoteID{}))
}

func TestCircleQuads(t *testing.T) {
	for _, typ := range []string{"circle", "heatmap"} {
		t.Run(typ, func(t *testing.T) {
			layer := evaluated(t, `{"id": "pts", "type": "`+typ+`", "source": "s", "source-layer": "pts"}`)
			b, err := New(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})
			require.NoError(t, err)
			circles := b.(*CircleBucket)

			features := indexed(
				point(1, 10, 20, nil),
				point(2, 300, 400, nil),
				point(3, -5, 100, nil),
			)
			require.NoError(t, b.Populate(features, newOptions()))

			// The out-of-tile point is dropped.
			assert.Equal(t, 8, circles.LayoutVertexArray.Len())
			assert.Equal(t, 4, circles.IndexArray.Len())
			assert.Equal(t, 8, circles.Segments.VertexTotal())
			assert.Equal(t, 4, circles.Segments.PrimitiveTotal())
			assert.Equal(t, Finalized, b.State())
			assert.False(t, b.IsEmpty())

			x, y := circles.LayoutVertexArray.At(0)
			assert.Equal(t, [2]int16{20, 40}, [2]int16{x, y})
			x, y = circles.LayoutVertexArray.At(2)
			assert.Equal(t, [2]int16{21, 41}, [2]int16{x, y})

			assert.Equal(t, [3]uint16{0, 1, 2}, circles.IndexArray.At(0))
			assert.Equal(t, [3]uint16{0, 3, 2}, circles.IndexArray.At(1))
			assert.Equal(t, [3]uint16{4, 5, 6}, circles.IndexArray.At(2))
		})
	}
}

func TestCircleSortKey(t *testing.T) {
	layer := evaluated(t, `{"id": "pts", "type": "circle", "source": "s", "source-layer": "pts",
	  "layout": {"circle-sort-key": ["get", "rank"]}}`)
	b := NewCircle(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})

	features := indexed(
		point(1, 10, 10, map[string]any{"rank": 3.0}),
		point(2, 20, 20, map[string]any{"rank": 1.0}),
	)
	require.NoError(t, b.Populate(features, newOptions()))

	x, _ := b.LayoutVertexArray.At(0)
	assert.Equal(t, int16(40), x, "lower sort key is tessellated first")
	assert.Equal(t, 2, b.Segments.Len(), "each sort key gets its own segment")
}

func TestFillTessellation(t *testing.T) {
	layer := evaluated(t, `{"id": "water", "type": "fill", "source": "s", "source-layer": "water"}`)
	b := NewFill(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})

	outer := square(0, 0, 100)
	hole := reversed(square(25, 25, 50))
	features := indexed(
		&vt.MemoryFeature{GeomType: vt.Polygon, FeatureID: uid(1), Rings: []vt.Ring{outer, hole}},
		&vt.MemoryFeature{GeomType: vt.Polygon, FeatureID: uid(2), Rings: []vt.Ring{square(200, 200, 10)}},
	)
	require.NoError(t, b.Populate(features, newOptions()))

	rings := len(outer) + len(hole) + 5
	assert.Equal(t, rings, b.LayoutVertexArray.Len())
	assert.Equal(t, rings, b.IndexArray2.Len(), "one outline segment per ring vertex")
	assert.Equal(t, rings, b.Segments2.PrimitiveTotal())

	// A square with a square hole makes eight triangles; a square makes two.
	assert.Equal(t, 10, b.IndexArray.Len())
	assert.Equal(t, b.IndexArray.Len(), b.Segments.PrimitiveTotal())

	// The closing edge of each ring is written first.
	assert.Equal(t, [2]uint16{4, 0}, b.IndexArray2.At(0))
	assert.Equal(t, [2]uint16{0, 1}, b.IndexArray2.At(1))

	for i := 0; i < b.IndexArray.Len(); i++ {
		for _, v := range b.IndexArray.At(i) {
			assert.Less(t, int(v), b.LayoutVertexArray.Len())
		}
	}
}

func TestFillSplitsPolygonsOverRingCap(t *testing.T) {
	layer := evaluated(t, `{"id": "water", "type": "fill", "source": "s", "source-layer": "water"}`)
	b := NewFill(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})
	opts := newOptions()
	opts.EarcutMaxRings = 3

	rings := []vt.Ring{
		square(0, 0, 300),
		reversed(square(20, 20, 20)),
		reversed(square(140, 20, 20)),
		reversed(square(260, 20, 20)),
	}
	features := indexed(&vt.MemoryFeature{GeomType: vt.Polygon, Rings: rings})
	require.NoError(t, b.Populate(features, opts))

	assert.Equal(t, 4*5, b.IndexArray2.Len(), "every ring keeps its outline")
	assert.Greater(t, b.LayoutVertexArray.Len(), 4*5)
	assert.Equal(t, b.LayoutVertexArray.Len(), b.Segments.VertexTotal())
	assert.Equal(t, b.LayoutVertexArray.Len(), b.Segments2.VertexTotal())

	area := 0
	for i := 0; i < b.IndexArray.Len(); i++ {
		tri := b.IndexArray.At(i)
		ax, ay := b.LayoutVertexArray.At(int(tri[0]))
		bx, by := b.LayoutVertexArray.At(int(tri[1]))
		cx, cy := b.LayoutVertexArray.At(int(tri[2]))
		cross := (int(bx)-int(ax))*(int(cy)-int(ay)) - (int(cx)-int(ax))*(int(by)-int(ay))
		if cross < 0 {
			cross = -cross
		}
		area += cross
	}
	assert.Equal(t, 2*(300*300-3*20*20), area, "holes beyond the cap stay open")
}

func TestFillFilter(t *testing.T) {
	layer := evaluated(t, `{"id": "big", "type": "fill", "source": "s", "source-layer": "water",
	  "filter": [">=", "area", 100]}`)
	b := NewFill(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})

	features := indexed(
		&vt.MemoryFeature{GeomType: vt.Polygon, Props: map[string]any{"area": 5.0}, Rings: []vt.Ring{square(0, 0, 10)}},
	)
	require.NoError(t, b.Populate(features, newOptions()))
	assert.True(t, b.IsEmpty())
	assert.Equal(t, Finalized, b.State())
}

func patternPositions(t *testing.T, names ...string) atlas.Positions {
	t.Helper()
	images := atlas.ImageMap{}
	for _, n := range names {
		images[n] = &atlas.Image{Data: image.NewRGBA(image.Rect(0, 0, 4, 4)), PixelRatio: 1}
	}
	return atlas.NewImageAtlas(nil, images).PatternPositions
}

func TestFillPatternBuffering(t *testing.T) {
	layer := evaluated(t, `{"id": "water", "type": "fill", "source": "s", "source-layer": "water",
	  "paint": {"fill-pattern": "stripes"}}`)
	b := NewFill(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})
	opts := newOptions()

	features := indexed(&vt.MemoryFeature{GeomType: vt.Polygon, Rings: []vt.Ring{square(0, 0, 10)}})
	require.NoError(t, b.Populate(features, opts))

	assert.Equal(t, FeaturesBuffered, b.State())
	assert.True(t, b.HasPattern())
	assert.True(t, b.IsEmpty())
	assert.Contains(t, opts.PatternDependencies, "stripes")

	require.NoError(t, b.AddFeatures(opts, patternPositions(t, "stripes")))
	assert.Equal(t, Finalized, b.State())
	assert.Equal(t, 5, b.LayoutVertexArray.Len())

	err := b.AddFeatures(opts, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDataDrivenPattern(t *testing.T) {
	layer := evaluated(t, `{"id": "roads", "type": "line", "source": "s", "source-layer": "roads",
	  "paint": {"line-pattern": ["get", "surface"]}}`)
	b := NewLine(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})
	opts := newOptions()

	features := indexed(
		&vt.MemoryFeature{GeomType: vt.LineString, Props: map[string]any{"surface": "gravel"},
			Rings: []vt.Ring{{{X: 0, Y: 0}, {X: 100, Y: 0}}}},
		&vt.MemoryFeature{GeomType: vt.LineString, Props: map[string]any{"surface": "sand"},
			Rings: []vt.Ring{{{X: 0, Y: 50}, {X: 100, Y: 50}}}},
	)
	require.NoError(t, b.Populate(features, opts))
	assert.Equal(t, map[string]struct{}{"gravel": {}, "sand": {}}, opts.PatternDependencies)

	images := patternPositions(t, "gravel", "sand")
	require.NoError(t, b.AddFeatures(opts, images))

	binder := b.Programs().Get("roads").Binders["line-pattern"]
	require.NotNil(t, binder)
	assert.Equal(t, b.LayoutVertexArray.Len(), binder.Len())

	gravel := images["gravel"].TLBR()
	assert.Equal(t, append(gravel[:], gravel[:]...), binder.At(0))
	sand := images["sand"].TLBR()
	assert.Equal(t, append(sand[:], sand[:]...), binder.At(binder.Len()-1))
}

func TestLineButtCaps(t *testing.T) {
	layer := evaluated(t, `{"id": "roads", "type": "line", "source": "s", "source-layer": "roads"}`)
	b := NewLine(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})

	features := indexed(&vt.MemoryFeature{GeomType: vt.LineString, Rings: []vt.Ring{
		{{X: 10, Y: 10}, {X: 110, Y: 10}},
		{{X: 10, Y: 50}, {X: 60, Y: 50}, {X: 110, Y: 50}},
		{{X: 5, Y: 5}},
	}})
	require.NoError(t, b.Populate(features, newOptions()))

	// Two vertices per point; single-point lines draw nothing.
	assert.Equal(t, 4+6, b.LayoutVertexArray.Len())
	assert.Equal(t, 2+4, b.IndexArray.Len())
	assert.Equal(t, b.IndexArray.Len(), b.Segments.PrimitiveTotal())

	x, y, data := b.LayoutVertexArray.At(0)
	assert.Equal(t, int16(20), x)
	assert.Equal(t, int16(20), y, "left vertex has the up bit clear")
	assert.Equal(t, uint8(1), data[2]&0x3, "butt cap has no direction")

	_, y, _ = b.LayoutVertexArray.At(1)
	assert.Equal(t, int16(21), y, "right vertex has the up bit set")
}

func TestLineRoundCapsAddVertices(t *testing.T) {
	butt := evaluated(t, `{"id": "a", "type": "line", "source": "s", "source-layer": "roads"}`)
	round := evaluated(t, `{"id": "b", "type": "line", "source": "s", "source-layer": "roads",
	  "layout": {"line-cap": "round"}}`)

	count := func(layer *style.Evaluated) int {
		b := NewLine(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})
		features := indexed(&vt.MemoryFeature{GeomType: vt.LineString,
			Rings: []vt.Ring{{{X: 10, Y: 10}, {X: 110, Y: 10}}}})
		require.NoError(t, b.Populate(features, newOptions()))
		return b.LayoutVertexArray.Len()
	}
	assert.Greater(t, count(round), count(butt))
}

func TestFillExtrusionWallsAndRoof(t *testing.T) {
	layer := evaluated(t, `{"id": "buildings", "type": "fill-extrusion", "source": "s", "source-layer": "building",
	  "paint": {"fill-extrusion-height": ["get", "height"]}}`)
	b := NewFillExtrusion(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})
	opts := newOptions()

	ring := square(100, 100, 100)
	features := indexed(&vt.MemoryFeature{GeomType: vt.Polygon, FeatureID: uid(7),
		Props: map[string]any{"height": 30.0}, Rings: []vt.Ring{ring}})
	require.NoError(t, b.Populate(features, opts))

	// Four vertices and two triangles per wall, then the roof.
	walls := len(ring) - 1
	assert.Equal(t, walls*4+len(ring), b.LayoutVertexArray.Len())
	assert.Equal(t, walls*2+2, b.IndexArray.Len())

	roof := b.LayoutVertexArray.At(walls * 4)
	assert.Equal(t, int16(100), roof[0])
	assert.Equal(t, int16(1), roof[2]&1, "roof vertices carry the top flag")

	max, ok := b.Programs().MaxValue("buildings", "fill-extrusion-height")
	require.True(t, ok)
	assert.Equal(t, 30.0, max)
}

func TestFillExtrusionSkipsTileEdges(t *testing.T) {
	layer := evaluated(t, `{"id": "buildings", "type": "fill-extrusion", "source": "s", "source-layer": "building"}`)
	b := NewFillExtrusion(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})

	// Two of this square's edges run outside the tile along its border.
	features := indexed(&vt.MemoryFeature{GeomType: vt.Polygon, Rings: []vt.Ring{square(-50, -50, 100)}})
	require.NoError(t, b.Populate(features, newOptions()))
	assert.Equal(t, 2*4+5, b.LayoutVertexArray.Len())
}

func TestNewWithoutGeometry(t *testing.T) {
	for _, typ := range []string{"raster", "hillshade"} {
		layer := evaluated(t, `{"id": "r", "type": "`+typ+`", "source": "s"}`)
		b, err := New(Parameters{Layers: []*style.Evaluated{layer}})
		assert.NoError(t, err)
		assert.Nil(t, b)
	}

	_, err := New(Parameters{})
	assert.Error(t, err)
}

func TestFeatureKey(t *testing.T) {
	tests := []struct {
		id   any
		want uint64
		ok   bool
	}{
		{nil, 0, false},
		{uint64(42), 42, true},
		{int64(42), 42, true},
		{42.0, 42, true},
		{"42", 42, true},
		{true, 1, true},
		{"harbor", xxhash.Sum64String("harbor"), true},
		{2.5, xxhash.Sum64String("2.5"), true},
		{int64(-3), xxhash.Sum64String("-3"), true},
	}
	for _, tt := range tests {
		got, ok := FeatureKey(tt.id)
		assert.Equal(t, tt.ok, ok, "%v", tt.id)
		assert.Equal(t, tt.want, got, "%v", tt.id)
	}
}

func TestProgramConfigurationState(t *testing.T) {
	layer := evaluated(t, `{"id": "pts", "type": "circle", "source": "s", "source-layer": "pts",
	  "paint": {
	    "circle-radius": ["get", "r"],
	    "circle-color": ["coalesce", ["feature-state", "color"], "#ff0000"]
	  }}`)
	b := NewCircle(Parameters{Layers: []*style.Evaluated{layer}, Zoom: 10})

	src := &vt.MemoryLayer{LayerName: "pts", ExtentSize: geometry.Extent, FeatureSlice: []*vt.MemoryFeature{
		point(1, 10, 10, map[string]any{"r": 2.0}),
		point(2, 20, 20, map[string]any{"r": 6.0}),
	}}
	require.NoError(t, b.Populate(indexed(src.FeatureSlice...), newOptions()))

	pc := b.Programs().Get("pts")
	require.NotNil(t, pc)
	assert.Equal(t, 8, pc.Binders["circle-radius"].Len())
	assert.Equal(t, []float32{6}, pc.Binders["circle-radius"].At(7))
	assert.Equal(t, []float32{1, 0, 0, 1}, pc.Binders["circle-color"].At(0))
	assert.Equal(t, []FeaturePosition{{Index: 1, Start: 4, End: 8}}, pc.FeatureMap[2])

	radius, ok := b.Programs().MaxValue("pts", "circle-radius")
	require.True(t, ok)
	assert.Equal(t, 6.0, radius)
	assert.Equal(t, 6.0, layer.QueryRadius(b.Programs()))

	rec := gpu.NewRecorder()
	b.Upload(rec)
	assert.False(t, b.UploadPending())
	stats := rec.Stats()
	assert.Equal(t, 3, stats.VertexBuffers, "layout plus two paint arrays")
	assert.Equal(t, 1, stats.IndexBuffers)

	b.Update(FeatureStates{2: {"color": "#0000ff"}}, src, nil)
	assert.Equal(t, []float32{1, 0, 0, 1}, pc.Binders["circle-color"].At(3))
	assert.Equal(t, []float32{0, 0, 1, 1}, pc.Binders["circle-color"].At(4))
	assert.True(t, b.UploadPending())

	b.Upload(rec)
	stats = rec.Stats()
	assert.Equal(t, 3, stats.VertexBuffers, "paint buffers are updated in place")
	assert.Equal(t, 2, stats.Updates)

	b.Destroy()
	assert.Zero(t, rec.Stats().Live)
	assert.False(t, b.Uploaded())
}

func TestSymbolDependencies(t *testing.T) {
	layer := evaluated(t, `{"id": "labels", "type": "symbol", "source": "s", "source-layer": "poi",
	  "layout": {
	    "text-field": "{name}",
	    "text-transform": "uppercase",
	    "text-font": ["Noto Sans Regular"],
	    "icon-image": "{kind}"
	  }}`)
	b, err := New(Parameters{Index: 3, Layers: []*style.Evaluated{layer}, Zoom: 10})
	require.NoError(t, err)
	symbols := b.(*SymbolBucket)
	opts := newOptions()

	features := indexed(
		point(1, 100, 100, map[string]any{"name": "dock", "kind": "harbor"}),
		point(2, 200, 200, map[string]any{}),
	)
	require.NoError(t, b.Populate(features, opts))

	assert.Equal(t, FeaturesBuffered, b.State())
	require.Len(t, symbols.Features, 1)
	assert.Equal(t, "DOCK", symbols.Features[0].Text)
	assert.Equal(t, map[rune]struct{}{'D': {}, 'O': {}, 'C': {}, 'K': {}}, opts.GlyphDependencies["Noto Sans Regular"])
	assert.Equal(t, map[string]struct{}{"harbor": {}}, opts.IconDependencies)

	glyphs := atlas.NewGlyphAtlas(atlas.GlyphMap{"Noto Sans Regular": {
		'D': {ID: 'D', Metrics: atlas.GlyphMetrics{Advance: 12}},
		'O': {ID: 'O', Metrics: atlas.GlyphMetrics{Advance: 12}},
		'C': {ID: 'C', Metrics: atlas.GlyphMetrics{Advance: 12}},
		'K': {ID: 'K', Metrics: atlas.GlyphMetrics{Advance: 12}},
	}})

	boxes := array.NewCollisionBoxArray()
	require.NoError(t, symbols.Layout(PointLayouter{}, glyphs.Positions, nil, boxes))
	assert.Equal(t, Finalized, b.State())
	assert.False(t, b.IsEmpty())

	// 48 advance units at text-size 16 over a 24px base is 32px wide.
	require.Equal(t, 1, boxes.Len())
	want := array.CollisionBox{AnchorX: 100, AnchorY: 100, X1: -16, Y1: -8, X2: 16, Y2: 8, FeatureIndex: 0, BucketIndex: 3}
	if diff := cmp.Diff(want, boxes.At(0)); diff != "" {
		t.Errorf("collision box mismatch (-want +got):\n%s", diff)
	}

	err = symbols.Layout(PointLayouter{}, nil, nil, boxes)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTransformText(t *testing.T) {
	assert.Equal(t, "STRASSE", transformText("straße", "uppercase"))
	assert.Equal(t, "main st", transformText("MAIN St", "lowercase"))
	assert.Equal(t, "\u00e9", transformText("e\u0301", "none"), "composed to NFC")
}

func TestPayloadRestore(t *testing.T) {
	layer := evaluated(t, `{"id": "water", "type": "fill", "source": "s", "source-layer": "water",
	  "paint": {"fill-opacity": ["get", "o"]}}`)
	b := NewFill(Parameters{Index: 2, Layers: []*style.Evaluated{layer}, Zoom: 10})
	features := indexed(&vt.MemoryFeature{GeomType: vt.Polygon, FeatureID: uid(4),
		Props: map[string]any{"o": 0.5}, Rings: []vt.Ring{square(0, 0, 10)}})
	require.NoError(t, b.Populate(features, newOptions()))

	p := b.Payload()
	assert.Equal(t, []string{"water"}, p.LayerIDs)
	assert.Equal(t, style.Fill, p.Kind)

	lookup := func(id string) *style.Evaluated {
		if id == "water" {
			return layer
		}
		return nil
	}
	restored, err := FromPayload(p, lookup)
	require.NoError(t, err)
	fill := restored.(*FillBucket)
	assert.Equal(t, 2, fill.Index())
	assert.Equal(t, Finalized, fill.State())
	assert.Equal(t, b.LayoutVertexArray.Bytes(), fill.LayoutVertexArray.Bytes())
	assert.Equal(t, b.IndexArray2.Bytes(), fill.IndexArray2.Bytes())
	assert.Equal(t, b.Segments.Segments(), fill.Segments.Segments())

	opacity, ok := fill.Programs().MaxValue("water", "fill-opacity")
	require.True(t, ok)
	assert.Equal(t, 0.5, opacity)

	gone, err := FromPayload(p, func(string) *style.Evaluated { return nil })
	assert.NoError(t, err)
	assert.Nil(t, gone)

	delete(p.Arrays, ArrayIndex2)
	_, err = FromPayload(p, lookup)
	assert.Error(t, err)
}
