// Package vtgeom compiles Mapbox Vector Tiles into GPU-ready geometry.
//
// A tile goes through these packages in order:
//
//   - vt decodes the encoded tile into layers and features.
//   - style parses the style document and groups layers into families.
//   - worker runs the parse state machine and fills one bucket per family.
//   - bucket holds the vertex, index and paint attribute arrays.
//   - featureindex answers rendered-feature queries against the tile.
//   - transfer moves parse results between goroutines or processes.
//   - tile owns the parsed data on the renderer side, and tile.Cache keeps
//     recently used tiles.
//
// Logging is silent until SetLogger is called.
package vtgeom

import (
	"log/slog"

	"github.com/beetlebugorg/vtgeom/internal/logging"
)

// SetLogger sets the logger used by every vtgeom package. Pass nil to
// silence logging again.
func SetLogger(l *slog.Logger) {
	logging.SetLogger(l)
}
