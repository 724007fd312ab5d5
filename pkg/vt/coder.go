package vt

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

// DictionaryCoder maps source-layer names to small integers and back. Names
// are sorted so both sides of a transfer derive the same coding.
type DictionaryCoder struct {
	names   []string
	indices map[string]int
}

// NewDictionaryCoder builds a coder over the given names.
func NewDictionaryCoder(names []string) *DictionaryCoder {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	c := &DictionaryCoder{indices: make(map[string]int, len(sorted))}
	for _, n := range sorted {
		if _, dup := c.indices[n]; dup {
			continue
		}
		c.indices[n] = len(c.names)
		c.names = append(c.names, n)
	}
	return c
}

// NewTileCoder builds a coder over every layer name in t.
func NewTileCoder(t *VectorTile) *DictionaryCoder {
	names := make([]string, 0, len(t.Layers))
	for name := range t.Layers {
		names = append(names, name)
	}
	return NewDictionaryCoder(names)
}

// Encode returns the index of name.
func (c *DictionaryCoder) Encode(name string) (int, bool) {
	i, ok := c.indices[name]
	return i, ok
}

// Decode returns the name at index i, or "" when out of range.
func (c *DictionaryCoder) Decode(i int) string {
	if i < 0 || i >= len(c.names) {
		return ""
	}
	return c.names[i]
}

// Names returns the coded names in index order.
func (c *DictionaryCoder) Names() []string { return c.names }

// Checksum identifies the coding, so a decoder can tell whether its coder
// matches the one used to build an index.
func (c *DictionaryCoder) Checksum() uint64 {
	d := xxhash.New()
	for _, n := range c.names {
		_, _ = d.WriteString(n)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
