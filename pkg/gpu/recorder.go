package gpu

import (
	"sync"

	"github.com/beetlebugorg/vtgeom/internal/array"
)

// Recorder is a Context that keeps buffers in memory and counts calls. It
// backs headless tooling and tests.
type Recorder struct {
	mu      sync.Mutex
	vertex  []*RecordedBuffer
	index   []*RecordedBuffer
	updates int
}

// RecordedBuffer is a buffer created by a Recorder.
type RecordedBuffer struct {
	rec       *Recorder
	Layout    *array.Layout
	Data      []byte
	Dynamic   bool
	Destroyed bool
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) CreateVertexBuffer(data []byte, layout *array.Layout, dynamic bool) VertexBuffer {
	b := &RecordedBuffer{rec: r, Layout: layout, Data: append([]byte(nil), data...), Dynamic: dynamic}
	r.mu.Lock()
	r.vertex = append(r.vertex, b)
	r.mu.Unlock()
	return b
}

func (r *Recorder) CreateIndexBuffer(data []byte, dynamic bool) IndexBuffer {
	b := &RecordedBuffer{rec: r, Data: append([]byte(nil), data...), Dynamic: dynamic}
	r.mu.Lock()
	r.index = append(r.index, b)
	r.mu.Unlock()
	return b
}

func (b *RecordedBuffer) UpdateData(data []byte) {
	b.rec.mu.Lock()
	defer b.rec.mu.Unlock()
	b.Data = append(b.Data[:0], data...)
	b.rec.updates++
}

func (b *RecordedBuffer) Destroy() {
	b.rec.mu.Lock()
	b.Destroyed = true
	b.rec.mu.Unlock()
}

// Stats summarizes what a Recorder has seen.
type Stats struct {
	VertexBuffers int
	IndexBuffers  int
	Live          int
	Updates       int
	Bytes         int
}

// Stats returns counts of created, live and updated buffers.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{VertexBuffers: len(r.vertex), IndexBuffers: len(r.index), Updates: r.updates}
	for _, list := range [][]*RecordedBuffer{r.vertex, r.index} {
		for _, b := range list {
			if !b.Destroyed {
				s.Live++
				s.Bytes += len(b.Data)
			}
		}
	}
	return s
}
