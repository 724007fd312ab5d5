// Package source reads encoded vector tiles from an MBTiles file.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/beetlebugorg/vtgeom/pkg/tileid"
	"github.com/beetlebugorg/vtgeom/pkg/worker"
)

// MBTiles is a read-only MBTiles tile store. Rows are stored in TMS order
// and converted to XYZ on the way out.
type MBTiles struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// Open opens an MBTiles file for reading. The returned store must be
// closed after use.
func Open(path string) (*MBTiles, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, err
	}
	stmt, err := db.Prepare("SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &MBTiles{db: db, stmt: stmt}, nil
}

func (m *MBTiles) Close() error {
	return errors.Join(m.stmt.Close(), m.db.Close())
}

// Metadata returns the name/value pairs of the metadata table.
func (m *MBTiles) Metadata(ctx context.Context) (map[string]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metadata[name] = value
	}
	return metadata, rows.Err()
}

// ReadTile returns the encoded data of a tile, or nil if the store does
// not have it.
func (m *MBTiles) ReadTile(ctx context.Context, id tileid.CanonicalTileID) ([]byte, error) {
	row := (uint32(1) << id.Z) - 1 - id.Y // XYZ -> TMS

	var data []byte
	if err := m.stmt.QueryRowContext(ctx, id.Z, id.X, row).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tile %d/%d/%d: %w", id.Z, id.X, id.Y, err)
	}
	return data, nil
}

// Loader adapts the store to a worker.Loader. Overscaled tiles read their
// canonical parent.
func (m *MBTiles) Loader() worker.Loader {
	return func(ctx context.Context, id tileid.OverscaledTileID) ([]byte, error) {
		return m.ReadTile(ctx, id.Canonical)
	}
}

// VisitZoom calls visit with every tile at zoom z, in no particular order.
func (m *MBTiles) VisitZoom(ctx context.Context, z uint8, visit func(tileid.CanonicalTileID, []byte) error) error {
	rows, err := m.db.QueryContext(ctx, "SELECT tile_column, tile_row, tile_data FROM tiles WHERE zoom_level = ?", z)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var x, y uint32
		var data []byte
		if err := rows.Scan(&x, &y, &data); err != nil {
			return err
		}
		y = (uint32(1) << z) - 1 - y // TMS -> XYZ

		id, err := tileid.NewCanonicalTileID(z, x, y)
		if err != nil {
			return fmt.Errorf("tile row %d/%d: %w", z, x, err)
		}
		if err := visit(id, data); err != nil {
			return err
		}
	}
	return rows.Err()
}
