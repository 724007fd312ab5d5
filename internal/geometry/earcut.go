package geometry

import (
	"github.com/rclancey/earcut"

	"github.com/beetlebugorg/vtgeom/internal/logging"
)

// Earcut triangulates a polygon given as flat coordinates with dim values
// per vertex. holeIndices holds the vertex index at which each hole ring
// starts. The result lists vertex indices, three per triangle; inputs with
// fewer than three vertices produce none.
func Earcut(data []float64, holeIndices []int, dim int) []int {
	if dim < 2 {
		dim = 2
	}
	if len(data) < 3*dim {
		return nil
	}
	indices, err := earcut.Earcut(data, holeIndices, dim)
	if err != nil {
		logging.Logger().Warn("triangulation failed", "error", err)
		return nil
	}
	return indices
}

// Deviation compares the area covered by triangles with the polygon area.
// Zero means the triangulation is exact.
func Deviation(data []float64, holeIndices []int, dim int, triangles []int) float64 {
	return earcut.Deviation(data, holeIndices, dim, triangles)
}

// flatten lays a polygon's rings out as earcut input, outer ring first.
func flatten(polygon []Ring) (data []float64, holeIndices []int) {
	for i, ring := range polygon {
		if len(ring) == 0 {
			continue
		}
		if i > 0 {
			holeIndices = append(holeIndices, len(data)/2)
		}
		for _, p := range ring {
			data = append(data, float64(p.X), float64(p.Y))
		}
	}
	return data, holeIndices
}
