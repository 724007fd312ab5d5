package featureindex

import (
	"slices"

	"github.com/beetlebugorg/vtgeom/internal/array"
	"github.com/beetlebugorg/vtgeom/internal/geometry"
	"github.com/beetlebugorg/vtgeom/pkg/tileid"
)

// GridEntry is one indexed ring bounding box.
type GridEntry struct {
	Key int
	Box geometry.Box
}

// Snapshot is the plain content of a FeatureIndex, for moving an index
// between goroutines or processes.
type Snapshot struct {
	TileID         tileid.OverscaledTileID
	PromoteID      PromoteID
	Entries        []GridEntry
	Entries3D      []GridEntry
	FeatureIndex   *array.StructArray
	BucketLayerIDs [][]string
	RawTileData    []byte
}

// Snapshot returns the content of the index. The decoded tile is not
// included; a restored index decodes RawTileData on its first query.
func (fi *FeatureIndex) Snapshot() *Snapshot {
	return &Snapshot{
		TileID:         fi.TileID,
		PromoteID:      fi.PromoteID,
		Entries:        fi.grid.export(),
		Entries3D:      fi.grid3D.export(),
		FeatureIndex:   &fi.featureIndexArray.StructArray,
		BucketLayerIDs: slices.Clone(fi.bucketLayerIDs),
		RawTileData:    fi.RawTileData(),
	}
}

// Restore rebuilds an index from a snapshot.
func Restore(s *Snapshot) *FeatureIndex {
	fi := &FeatureIndex{
		TileID:            s.TileID,
		PromoteID:         s.PromoteID,
		grid:              restoreGrid(s.Entries),
		grid3D:            restoreGrid(s.Entries3D),
		featureIndexArray: array.NewFeatureIndexArray(),
		bucketLayerIDs:    s.BucketLayerIDs,
		rawTileData:       s.RawTileData,
	}
	if s.FeatureIndex != nil {
		fi.featureIndexArray = array.WrapFeatureIndex(s.FeatureIndex)
	}
	return fi
}
