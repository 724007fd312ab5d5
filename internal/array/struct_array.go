package array

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxIndex is the largest vertex index a uint16 index buffer can address.
const MaxIndex = 65535

const defaultCapacity = 128

// StructArray is a growable array of elements with a fixed Layout, stored
// as little-endian bytes.
type StructArray struct {
	layout *Layout
	data   []byte
	length int
}

func newStructArray(layout *Layout) StructArray {
	return StructArray{layout: layout}
}

// FromBytes wraps raw element bytes. The byte length must be a multiple of
// the layout size.
func FromBytes(layout *Layout, data []byte) (*StructArray, error) {
	if len(data)%layout.Size != 0 {
		return nil, fmt.Errorf("array %s: %d bytes is not a multiple of element size %d", layout.Name, len(data), layout.Size)
	}
	return &StructArray{layout: layout, data: data, length: len(data) / layout.Size}, nil
}

// Layout returns the element layout.
func (a *StructArray) Layout() *Layout { return a.layout }

// Len returns the number of elements.
func (a *StructArray) Len() int { return a.length }

// Bytes returns the populated part of the backing store without copying.
func (a *StructArray) Bytes() []byte { return a.data[:a.length*a.layout.Size] }

// Clear drops all elements but keeps the allocation.
func (a *StructArray) Clear() { a.length = 0 }

// Reserve ensures room for n elements in total.
func (a *StructArray) Reserve(n int) {
	need := n * a.layout.Size
	if need <= cap(a.data) {
		if need > len(a.data) {
			a.data = a.data[:need]
		}
		return
	}
	c := cap(a.data)
	if c < defaultCapacity*a.layout.Size {
		c = defaultCapacity * a.layout.Size
	}
	for c < need {
		c *= 2
	}
	grown := make([]byte, need, c)
	copy(grown, a.data[:a.length*a.layout.Size])
	a.data = grown
}

// Trim releases unused capacity.
func (a *StructArray) Trim() {
	n := a.length * a.layout.Size
	if cap(a.data) > n {
		trimmed := make([]byte, n)
		copy(trimmed, a.data[:n])
		a.data = trimmed
	}
}

// Resize sets the element count, growing storage as needed. New elements
// are zeroed.
func (a *StructArray) Resize(n int) {
	old := a.length
	a.Reserve(n)
	if n > old {
		clear(a.data[old*a.layout.Size : n*a.layout.Size])
	}
	a.length = n
}

// emplace appends one zeroed element and returns its byte offset.
func (a *StructArray) emplace() int {
	i := a.length
	a.Resize(i + 1)
	return i * a.layout.Size
}

func (a *StructArray) offset(i int) int {
	if i < 0 || i >= a.length {
		panic(fmt.Sprintf("array %s: index %d out of range [0,%d)", a.layout.Name, i, a.length))
	}
	return i * a.layout.Size
}

func (a *StructArray) putInt16(off int, v int16) {
	binary.LittleEndian.PutUint16(a.data[off:], uint16(v))
}

func (a *StructArray) putUint16(off int, v uint16) {
	binary.LittleEndian.PutUint16(a.data[off:], v)
}

func (a *StructArray) putUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(a.data[off:], v)
}

func (a *StructArray) putFloat32(off int, v float32) {
	binary.LittleEndian.PutUint32(a.data[off:], math.Float32bits(v))
}

func (a *StructArray) int16At(off int) int16 {
	return int16(binary.LittleEndian.Uint16(a.data[off:]))
}

func (a *StructArray) uint16At(off int) uint16 {
	return binary.LittleEndian.Uint16(a.data[off:])
}

func (a *StructArray) uint32At(off int) uint32 {
	return binary.LittleEndian.Uint32(a.data[off:])
}

func (a *StructArray) float32At(off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(a.data[off:]))
}
