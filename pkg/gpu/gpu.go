// Package gpu is the boundary between compiled tile geometry and a graphics
// backend. Buckets upload their arrays through a Context; the backend
// behind it is supplied by the caller.
package gpu

import "github.com/beetlebugorg/vtgeom/internal/array"

// VertexBuffer is an uploaded vertex array.
type VertexBuffer interface {
	// UpdateData replaces the buffer contents.
	UpdateData(data []byte)
	Destroy()
}

// IndexBuffer is an uploaded index array.
type IndexBuffer interface {
	UpdateData(data []byte)
	Destroy()
}

// Context creates GPU buffers.
type Context interface {
	CreateVertexBuffer(data []byte, layout *array.Layout, dynamic bool) VertexBuffer
	CreateIndexBuffer(data []byte, dynamic bool) IndexBuffer
}
