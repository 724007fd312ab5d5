package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/vtgeom/pkg/tileid"
)

// writeMBTiles creates an MBTiles file holding the given XYZ tiles.
func writeMBTiles(t *testing.T, tiles map[tileid.CanonicalTileID][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mbtiles")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE metadata (name TEXT, value TEXT);
		CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB);
		CREATE UNIQUE INDEX tile_index ON tiles (zoom_level, tile_column, tile_row);
	`)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO metadata (name, value) VALUES ('format', 'pbf'), ('name', 'test')")
	require.NoError(t, err)

	for id, data := range tiles {
		row := (uint32(1) << id.Z) - 1 - id.Y
		_, err = db.Exec("INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)", id.Z, id.X, row, data)
		require.NoError(t, err)
	}
	return path
}

func TestMBTiles(t *testing.T) {
	tiles := map[tileid.CanonicalTileID][]byte{
		tileid.MustCanonical(2, 1, 0): []byte("a"),
		tileid.MustCanonical(2, 3, 2): []byte("b"),
		tileid.MustCanonical(3, 5, 1): []byte("c"),
	}
	m, err := Open(writeMBTiles(t, tiles))
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	metadata, err := m.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"format": "pbf", "name": "test"}, metadata)

	data, err := m.ReadTile(ctx, tileid.MustCanonical(2, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)

	data, err = m.ReadTile(ctx, tileid.MustCanonical(2, 3, 1))
	require.NoError(t, err)
	assert.Nil(t, data, "missing tile")

	data, err = m.Loader()(ctx, tileid.MustOverscaled(5, 1, 3, 5, 1))
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), data)

	var visited []string
	err = m.VisitZoom(ctx, 2, func(id tileid.CanonicalTileID, data []byte) error {
		assert.Equal(t, tiles[id], data)
		visited = append(visited, id.String())
		return nil
	})
	require.NoError(t, err)
	sort.Strings(visited)
	assert.Equal(t, []string{"2/1/0", "2/3/2"}, visited)
}

func TestMBTilesOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mbtiles"))
	assert.Error(t, err)
}
