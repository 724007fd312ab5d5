package geometry

// ClassifyRings groups rings into polygons. The winding of the first ring
// with non-zero area marks outer rings; every following ring of the
// opposite winding is a hole of the preceding outer ring. Zero-area rings
// are dropped.
func ClassifyRings(rings []Ring) [][]Ring {
	if len(rings) <= 1 {
		return [][]Ring{rings}
	}

	var (
		polygons [][]Ring
		current  []Ring
		ccw      bool
		started  bool
	)
	for _, ring := range rings {
		area := SignedArea(ring)
		if area == 0 {
			continue
		}
		if !started {
			ccw = area < 0
			started = true
		}
		if ccw == (area < 0) {
			if current != nil {
				polygons = append(polygons, current)
			}
			current = []Ring{ring}
		} else {
			current = append(current, ring)
		}
	}
	if current != nil {
		polygons = append(polygons, current)
	}
	return polygons
}
