// Package transfer encodes parse results into self-contained messages, so
// a worker process can hand buckets, the feature index and atlases to the
// process that draws them.
//
// A message is a fixed header followed by a body of tagged sections:
//
//	magic "VTGM" | version | codec | uvarint body size | body
//
// The body may be compressed with LZ4, Zstandard or S2. Vertex, index and
// paint arrays are carried as raw element bytes and decoded arrays share
// memory with the decompressed body.
package transfer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/geometry"
	"github.com/beetlebugorg/vtgeom/internal/logging"
	"github.com/beetlebugorg/vtgeom/internal/segment"
	"github.com/beetlebugorg/vtgeom/pkg/atlas"
	"github.com/beetlebugorg/vtgeom/pkg/bucket"
	"github.com/beetlebugorg/vtgeom/pkg/featureindex"
	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/worker"
)

var (
	// ErrUnknownMessage is returned for data that is not a message this
	// package can read: wrong magic, version, codec or section tag.
	ErrUnknownMessage = errors.New("transfer: unknown message")

	// ErrCorruptPayload is returned when a message is truncated or its
	// sections do not decode.
	ErrCorruptPayload = errors.New("transfer: corrupt payload")
)

const version = 1

// maxBodySize bounds the buffer allocated for a decompressed body.
const maxBodySize = 256 << 20

var magic = []byte("VTGM")

// Section tags.
const (
	tagTile uint8 = iota + 1
	tagBucket
	tagFeatureIndex
	tagCollisionBoxes
	tagGlyphAtlas
	tagImageAtlas
)

// Encode serializes a parse result.
func Encode(res *worker.Result, c Compression) ([]byte, error) {
	if res == nil {
		return nil, errors.New("transfer: nil result")
	}
	var body writer
	body.section(tagTile, func(w *writer) { writeTileID(w, res.TileID) })
	for _, b := range res.Buckets {
		payload := b.Payload()
		body.section(tagBucket, func(w *writer) { writeBucket(w, payload) })
	}
	if res.FeatureIndex != nil {
		snap := res.FeatureIndex.Snapshot()
		body.section(tagFeatureIndex, func(w *writer) { writeFeatureIndex(w, snap) })
	}
	if res.CollisionBoxArray != nil {
		body.section(tagCollisionBoxes, func(w *writer) { w.bytes(res.CollisionBoxArray.Bytes()) })
	}
	if res.GlyphAtlasImage != nil {
		body.section(tagGlyphAtlas, func(w *writer) { writeAlpha(w, res.GlyphAtlasImage) })
	}
	if res.ImageAtlas != nil {
		body.section(tagImageAtlas, func(w *writer) { writeImageAtlas(w, res.ImageAtlas) })
	}

	cd, err := codecFor(c)
	if err != nil {
		return nil, err
	}
	compressed, err := cd.Compress(body.buf)
	if errors.Is(err, errIncompressible) {
		c, compressed, err = None, body.buf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transfer: compress %s: %w", c, err)
	}

	out := make([]byte, 0, len(magic)+2+binary.MaxVarintLen64+len(compressed))
	out = append(out, magic...)
	out = append(out, version, uint8(c))
	out = binary.AppendUvarint(out, uint64(len(body.buf)))
	out = append(out, compressed...)

	logging.Logger().Debug("encoded tile",
		"tile", res.TileID.String(),
		"codec", c.String(),
		"buckets", len(res.Buckets),
		"raw_bytes", len(body.buf),
		"bytes", len(out))
	return out, nil
}

// Decode rebuilds a parse result. lookup, which must not be nil, resolves
// layer ids to the evaluated layers the buckets should draw with; buckets
// whose layers are all unknown are dropped.
func Decode(data []byte, lookup func(id string) *style.Evaluated) (*worker.Result, error) {
	if len(data) < len(magic)+2 || !bytes.Equal(data[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: bad magic", ErrUnknownMessage)
	}
	if v := data[len(magic)]; v != version {
		return nil, fmt.Errorf("%w: version %d", ErrUnknownMessage, v)
	}
	c := Compression(data[len(magic)+1])
	cd, err := codecFor(c)
	if err != nil {
		return nil, err
	}
	rest := data[len(magic)+2:]
	size, n := binary.Uvarint(rest)
	if n <= 0 || size > maxBodySize {
		return nil, fmt.Errorf("%w: bad body size", ErrCorruptPayload)
	}
	body, err := cd.Decompress(rest[n:], int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptPayload, c, err)
	}

	res := &worker.Result{}
	r := &reader{data: body}
	for !r.done() {
		tag, sec := r.section()
		if r.err != nil {
			break
		}
		switch tag {
		case tagTile:
			res.TileID = readTileID(sec)
		case tagBucket:
			p := readBucket(sec)
			if sec.err != nil {
				break
			}
			b, err := bucket.FromPayload(p, lookup)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
			}
			if b != nil {
				res.Buckets = append(res.Buckets, b)
			}
		case tagFeatureIndex:
			if snap := readFeatureIndex(sec); sec.err == nil {
				res.FeatureIndex = featureindex.Restore(snap)
			}
		case tagCollisionBoxes:
			if a := readArray(sec, array.CollisionBoxLayout); a != nil {
				res.CollisionBoxArray = array.WrapCollisionBoxes(a)
			}
		case tagGlyphAtlas:
			res.GlyphAtlasImage = readAlpha(sec)
		case tagImageAtlas:
			res.ImageAtlas = readImageAtlas(sec)
		default:
			return nil, fmt.Errorf("%w: section tag %d", ErrUnknownMessage, tag)
		}
		if sec.err != nil {
			return nil, fmt.Errorf("section %d: %w", tag, sec.err)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return res, nil
}

func writeTileID(w *writer, id tileid.OverscaledTileID) {
	w.byte(id.OverscaledZ)
	w.varint(int64(id.Wrap))
	w.byte(id.Canonical.Z)
	w.uvarint(uint64(id.Canonical.X))
	w.uvarint(uint64(id.Canonical.Y))
}

func readTileID(r *reader) tileid.OverscaledTileID {
	overscaledZ := r.byte()
	wrap := int32(r.varint())
	z := r.byte()
	x, y := uint32(r.uvarint()), uint32(r.uvarint())
	if r.err != nil {
		return tileid.OverscaledTileID{}
	}
	id, err := tileid.NewOverscaledTileID(overscaledZ, wrap, z, x, y)
	if err != nil {
		r.fail("%v", err)
	}
	return id
}

func writeBucket(w *writer, p *bucket.Payload) {
	w.byte(uint8(p.Kind))
	w.int(p.Index)
	w.strings(p.LayerIDs)
	w.float64(p.Zoom)
	w.int(p.OverscaleFactor)
	w.bool(p.HasPattern)
	w.byte(uint8(p.State))

	w.uvarint(uint64(len(p.Arrays)))
	for _, name := range sortedKeys(p.Arrays) {
		w.string(name)
		w.bytes(p.Arrays[name].Bytes())
	}

	w.uvarint(uint64(len(p.Segments)))
	for _, name := range sortedKeys(p.Segments) {
		w.string(name)
		segs := p.Segments[name].Segments()
		w.uvarint(uint64(len(segs)))
		for _, s := range segs {
			w.int(s.VertexOffset)
			w.int(s.PrimitiveOffset)
			w.int(s.VertexLength)
			w.int(s.PrimitiveLength)
			w.bool(s.SortKey != nil)
			if s.SortKey != nil {
				w.float64(*s.SortKey)
			}
		}
	}

	w.uvarint(uint64(len(p.Programs)))
	for _, pc := range p.Programs {
		writeProgram(w, pc)
	}

	w.uvarint(uint64(len(p.Symbols)))
	for _, s := range p.Symbols {
		w.int(s.Anchor.X)
		w.int(s.Anchor.Y)
		w.int(s.FeatureIndex)
		w.int(s.SourceLayerIndex)
		w.string(s.Text)
		w.string(s.Icon)
		w.float64(s.X1)
		w.float64(s.Y1)
		w.float64(s.X2)
		w.float64(s.Y2)
	}
}

func readBucket(r *reader) *bucket.Payload {
	p := &bucket.Payload{
		Kind:            style.Type(r.byte()),
		Index:           r.int(),
		LayerIDs:        r.strings(),
		Zoom:            r.float64(),
		OverscaleFactor: r.int(),
		HasPattern:      r.bool(),
		State:           bucket.State(r.byte()),
		Arrays:          make(map[string]*array.StructArray),
		Segments:        make(map[string]*segment.Vector),
	}

	for n := r.count(2); n > 0 && r.err == nil; n-- {
		name := r.string()
		layout, ok := bucket.ArrayLayout(p.Kind, name)
		if !ok {
			r.fail("no array %q in %s bucket", name, p.Kind)
			break
		}
		if a := readArray(r, layout); a != nil {
			p.Arrays[name] = a
		}
	}

	for n := r.count(2); n > 0 && r.err == nil; n-- {
		name := r.string()
		v := segment.NewVector()
		for k := r.count(5); k > 0 && r.err == nil; k-- {
			s := segment.Segment{
				VertexOffset:    r.int(),
				PrimitiveOffset: r.int(),
				VertexLength:    r.int(),
				PrimitiveLength: r.int(),
			}
			if r.bool() {
				key := r.float64()
				s.SortKey = &key
			}
			v.Append(s)
		}
		p.Segments[name] = v
	}

	for n := r.count(4); n > 0 && r.err == nil; n-- {
		p.Programs = append(p.Programs, readProgram(r))
	}

	for n := r.count(38); n > 0 && r.err == nil; n-- {
		s := bucket.SymbolInstance{
			Anchor:           geometry.Point{X: r.int(), Y: r.int()},
			FeatureIndex:     r.int(),
			SourceLayerIndex: r.int(),
			Text:             r.string(),
			Icon:             r.string(),
		}
		s.X1, s.Y1, s.X2, s.Y2 = r.float64(), r.float64(), r.float64(), r.float64()
		p.Symbols = append(p.Symbols, s)
	}
	return p
}

func writeProgram(w *writer, pc *bucket.ProgramConfiguration) {
	w.string(pc.LayerID)

	w.uvarint(uint64(len(pc.Binders)))
	for _, name := range sortedKeys(pc.Binders) {
		a := pc.Binders[name]
		w.string(name)
		w.int(a.Components())
		w.bytes(a.Bytes())
	}

	w.uvarint(uint64(len(pc.MaxValues)))
	for _, name := range sortedKeys(pc.MaxValues) {
		w.string(name)
		w.float64(pc.MaxValues[name])
	}

	w.uvarint(uint64(len(pc.FeatureMap)))
	for key, positions := range pc.FeatureMap {
		w.uvarint(key)
		w.uvarint(uint64(len(positions)))
		for _, pos := range positions {
			w.int(pos.Index)
			w.int(pos.Start)
			w.int(pos.End)
		}
	}
}

func readProgram(r *reader) *bucket.ProgramConfiguration {
	pc := &bucket.ProgramConfiguration{
		LayerID:    r.string(),
		Binders:    make(map[string]*array.PaintArray),
		MaxValues:  make(map[string]float64),
		FeatureMap: make(map[uint64][]bucket.FeaturePosition),
	}
	for n := r.count(3); n > 0 && r.err == nil; n-- {
		name := r.string()
		components := r.int()
		if components < 1 || components > 16 {
			r.fail("paint array %q has %d components", name, components)
			break
		}
		if a := readArray(r, array.PaintLayout(name, components)); a != nil {
			pc.Binders[name] = array.WrapPaint(a)
		}
	}
	for n := r.count(9); n > 0 && r.err == nil; n-- {
		name := r.string()
		pc.MaxValues[name] = r.float64()
	}
	for n := r.count(2); n > 0 && r.err == nil; n-- {
		key := r.uvarint()
		positions := make([]bucket.FeaturePosition, r.count(3))
		for i := range positions {
			positions[i] = bucket.FeaturePosition{Index: r.int(), Start: r.int(), End: r.int()}
		}
		pc.FeatureMap[key] = positions
	}
	return pc
}

func readArray(r *reader, layout *array.Layout) *array.StructArray {
	data := r.bytes()
	if r.err != nil {
		return nil
	}
	a, err := array.FromBytes(layout, data)
	if err != nil {
		r.fail("%v", err)
		return nil
	}
	return a
}

func writeFeatureIndex(w *writer, s *featureindex.Snapshot) {
	writeTileID(w, s.TileID)
	w.string(s.PromoteID.All)
	w.uvarint(uint64(len(s.PromoteID.BySourceLayer)))
	for _, layer := range sortedKeys(s.PromoteID.BySourceLayer) {
		w.string(layer)
		w.string(s.PromoteID.BySourceLayer[layer])
	}
	for _, entries := range [][]featureindex.GridEntry{s.Entries, s.Entries3D} {
		w.uvarint(uint64(len(entries)))
		for _, e := range entries {
			w.int(e.Key)
			w.int(e.Box.MinX)
			w.int(e.Box.MinY)
			w.int(e.Box.MaxX)
			w.int(e.Box.MaxY)
		}
	}
	w.bytes(s.FeatureIndex.Bytes())
	w.uvarint(uint64(len(s.BucketLayerIDs)))
	for _, ids := range s.BucketLayerIDs {
		w.strings(ids)
	}
	w.optionalBytes(s.RawTileData)
}

func readFeatureIndex(r *reader) *featureindex.Snapshot {
	s := &featureindex.Snapshot{TileID: readTileID(r)}
	s.PromoteID.All = r.string()
	if n := r.count(2); n > 0 {
		s.PromoteID.BySourceLayer = make(map[string]string, n)
		for ; n > 0 && r.err == nil; n-- {
			layer := r.string()
			s.PromoteID.BySourceLayer[layer] = r.string()
		}
	}
	readEntries := func() []featureindex.GridEntry {
		entries := make([]featureindex.GridEntry, r.count(5))
		for i := range entries {
			entries[i] = featureindex.GridEntry{Key: r.int(), Box: geometry.Box{
				MinX: r.int(), MinY: r.int(), MaxX: r.int(), MaxY: r.int(),
			}}
		}
		return entries
	}
	s.Entries = readEntries()
	s.Entries3D = readEntries()
	s.FeatureIndex = readArray(r, array.FeatureIndexLayout)
	s.BucketLayerIDs = make([][]string, r.count(1))
	for i := range s.BucketLayerIDs {
		s.BucketLayerIDs[i] = r.strings()
	}
	s.RawTileData = r.optionalBytes()

	if r.err == nil {
		n := s.FeatureIndex.Len()
		for _, e := range append(s.Entries, s.Entries3D...) {
			if e.Key < 0 || e.Key >= n {
				r.fail("grid key %d out of range", e.Key)
				break
			}
		}
	}
	return s
}

func writeAlpha(w *writer, img *image.Alpha) {
	b := img.Bounds()
	w.int(b.Dx())
	w.int(b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		w.buf = append(w.buf, img.Pix[off:off+b.Dx()]...)
	}
}

func readAlpha(r *reader) *image.Alpha {
	width, height := r.int(), r.int()
	if r.err != nil {
		return nil
	}
	if width < 0 || height < 0 || width*height > len(r.data) {
		r.fail("glyph atlas %dx%d", width, height)
		return nil
	}
	img := image.NewAlpha(image.Rect(0, 0, width, height))
	r.data = r.data[copy(img.Pix, r.data):]
	return img
}

func writeImageAtlas(w *writer, a *atlas.ImageAtlas) {
	b := a.Image.Bounds()
	w.int(b.Dx())
	w.int(b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := a.Image.PixOffset(b.Min.X, y)
		w.buf = append(w.buf, a.Image.Pix[off:off+4*b.Dx()]...)
	}
	for _, positions := range []atlas.Positions{a.IconPositions, a.PatternPositions} {
		w.uvarint(uint64(len(positions)))
		for _, id := range sortedKeys(positions) {
			p := positions[id]
			w.string(id)
			w.int(p.PaddedRect.Min.X)
			w.int(p.PaddedRect.Min.Y)
			w.int(p.PaddedRect.Max.X)
			w.int(p.PaddedRect.Max.Y)
			w.float64(p.PixelRatio)
			w.int(p.Version)
		}
	}
}

func readImageAtlas(r *reader) *atlas.ImageAtlas {
	width, height := r.int(), r.int()
	if r.err != nil {
		return nil
	}
	if width < 0 || height < 0 || 4*width*height > len(r.data) {
		r.fail("image atlas %dx%d", width, height)
		return nil
	}
	a := &atlas.ImageAtlas{Image: image.NewRGBA(image.Rect(0, 0, width, height))}
	r.data = r.data[copy(a.Image.Pix, r.data):]

	readPositions := func() atlas.Positions {
		positions := make(atlas.Positions)
		for n := r.count(14); n > 0 && r.err == nil; n-- {
			id := r.string()
			rect := image.Rect(r.int(), r.int(), r.int(), r.int())
			positions[id] = atlas.ImagePosition{PaddedRect: rect, PixelRatio: r.float64(), Version: r.int()}
		}
		return positions
	}
	a.IconPositions = readPositions()
	a.PatternPositions = readPositions()
	return a
}
