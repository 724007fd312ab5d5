package transfer

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// writer appends little-endian primitives to a buffer.
type writer struct {
	buf []byte
}

func (w *writer) byte(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) bool(v bool) {
	if v {
		w.byte(1)
	} else {
		w.byte(0)
	}
}

func (w *writer) uvarint(v uint64) { w.buf = binary.AppendUvarint(w.buf, v) }

func (w *writer) varint(v int64) { w.buf = binary.AppendVarint(w.buf, v) }

func (w *writer) int(v int) { w.varint(int64(v)) }

func (w *writer) float64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *writer) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// optionalBytes distinguishes nil from empty.
func (w *writer) optionalBytes(b []byte) {
	w.bool(b != nil)
	if b != nil {
		w.bytes(b)
	}
}

func (w *writer) string(s string) {
	w.uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) strings(ss []string) {
	w.uvarint(uint64(len(ss)))
	for _, s := range ss {
		w.string(s)
	}
}

// section writes a tagged, length-prefixed section built by fn.
func (w *writer) section(tag uint8, fn func(*writer)) {
	var body writer
	fn(&body)
	w.byte(tag)
	w.bytes(body.buf)
}

// reader consumes what writer produced. The first error sticks; later
// reads return zero values.
type reader struct {
	data []byte
	err  error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrCorruptPayload, fmt.Sprintf(format, args...))
	}
}

func (r *reader) done() bool { return r.err != nil || len(r.data) == 0 }

func (r *reader) byte() uint8 {
	if r.err != nil {
		return 0
	}
	if len(r.data) < 1 {
		r.fail("unexpected end of data")
		return 0
	}
	v := r.data[0]
	r.data = r.data[1:]
	return v
}

func (r *reader) bool() bool { return r.byte() != 0 }

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data)
	if n <= 0 {
		r.fail("bad uvarint")
		return 0
	}
	r.data = r.data[n:]
	return v
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.data)
	if n <= 0 {
		r.fail("bad varint")
		return 0
	}
	r.data = r.data[n:]
	return v
}

func (r *reader) int() int { return int(r.varint()) }

// count reads a length and checks it against the bytes left, given the
// smallest encoding of one element.
func (r *reader) count(minSize int) int {
	n := r.uvarint()
	if r.err != nil {
		return 0
	}
	if minSize < 1 {
		minSize = 1
	}
	if n > uint64(len(r.data)/minSize) {
		r.fail("length %d exceeds remaining %d bytes", n, len(r.data))
		return 0
	}
	return int(n)
}

func (r *reader) float64() float64 {
	if r.err != nil {
		return 0
	}
	if len(r.data) < 8 {
		r.fail("unexpected end of data")
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.data))
	r.data = r.data[8:]
	return v
}

// bytes returns a sub-slice of the input, not a copy.
func (r *reader) bytes() []byte {
	n := r.count(1)
	if r.err != nil {
		return nil
	}
	b := r.data[:n:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) optionalBytes() []byte {
	if !r.bool() {
		return nil
	}
	b := r.bytes()
	if b == nil && r.err == nil {
		b = []byte{}
	}
	return b
}

func (r *reader) string() string { return string(r.bytes()) }

func (r *reader) strings() []string {
	n := r.count(1)
	if n == 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = r.string()
	}
	return out
}

// section reads the next tag and a reader over its body.
func (r *reader) section() (uint8, *reader) {
	tag := r.byte()
	body := r.bytes()
	return tag, &reader{data: body}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
