// Package gpkg reads and writes GeoPackage vector datasets through the
// pure-Go sqlite driver. It supports the operations the pipeline performs:
// enumerating features of a single-layer package, filtering on one
// attribute, and writing a single-feature multi-polygon layer.
package gpkg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"landopt/internal/gis"
)

// Store implements gis.VectorStore over GeoPackage files.
type Store struct{}

// NewStore constructs a GeoPackage-backed vector store.
func NewStore() *Store { return &Store{} }

// OpenVector implements gis.VectorStore. The package's first registered
// geometry column defines the layer.
func (s *Store) OpenVector(ctx context.Context, path string) (gis.VectorDataset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("gpkg: open %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("gpkg: open %s: %w", path, err)
	}

	d := &dataset{db: db, path: path}
	err = db.QueryRowContext(ctx,
		`SELECT gc.table_name, gc.column_name, srs.definition
         FROM gpkg_geometry_columns gc
         JOIN gpkg_spatial_ref_sys srs ON srs.srs_id = gc.srs_id
         LIMIT 1`,
	).Scan(&d.table, &d.column, &d.srs)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("gpkg: %s has no geometry layer: %w", path, err)
	}
	return d, nil
}

type dataset struct {
	db     *sql.DB
	path   string
	table  string
	column string
	srs    string
}

func (d *dataset) SpatialRef() string { return d.srs }

func (d *dataset) Features(ctx context.Context, field string) ([]gis.FeatureInfo, error) {
	query := fmt.Sprintf(`SELECT fid, %s, %s FROM %s ORDER BY fid`,
		quoteIdent(field), quoteIdent(d.column), quoteIdent(d.table))
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("gpkg: enumerate %s by %q: %w", d.path, field, err)
	}
	defer rows.Close()

	var features []gis.FeatureInfo
	for rows.Next() {
		var (
			fid   int64
			value string
			blob  []byte
		)
		if err := rows.Scan(&fid, &value, &blob); err != nil {
			return nil, fmt.Errorf("gpkg: scan feature of %s: %w", d.path, err)
		}
		geom, err := decodeGeometry(blob)
		if err != nil {
			return nil, fmt.Errorf("gpkg: feature %d of %s: %w", fid, d.path, err)
		}
		features = append(features, gis.FeatureInfo{FID: fid, Value: value, Area: geom.Area()})
	}
	return features, rows.Err()
}

func (d *dataset) FindFirst(ctx context.Context, field, value string) (gis.Geometry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY fid LIMIT 1`,
		quoteIdent(d.column), quoteIdent(d.table), quoteIdent(field))
	var blob []byte
	err := d.db.QueryRowContext(ctx, query, value).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gis.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gpkg: filter %s on %s=%s: %w", d.path, field, value, err)
	}
	geom, err := decodeGeometry(blob)
	if err != nil {
		return nil, fmt.Errorf("gpkg: filter %s on %s=%s: %w", d.path, field, value, err)
	}
	return geom, nil
}

func (d *dataset) Close() error { return d.db.Close() }

// CreateVector implements gis.VectorStore. An existing file at path is
// replaced.
func (s *Store) CreateVector(ctx context.Context, path, layer, spatialRef string) (gis.VectorWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("gpkg: create directory for %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("gpkg: replace %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("gpkg: create %s: %w", path, err)
	}
	if err := initPackage(ctx, db, layer, spatialRef); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("gpkg: initialize %s: %w", path, err)
	}
	return &vectorWriter{db: db, path: path, layer: layer}, nil
}

// 0x47504B47 is "GPKG"; GeoPackage readers key on it.
const applicationID = 1196444487

func initPackage(ctx context.Context, db *sql.DB, layer, spatialRef string) error {
	statements := []string{
		fmt.Sprintf("PRAGMA application_id = %d", applicationID),
		"PRAGMA user_version = 10300",
		`CREATE TABLE gpkg_spatial_ref_sys (
            srs_name TEXT NOT NULL,
            srs_id INTEGER PRIMARY KEY,
            organization TEXT NOT NULL,
            organization_coordsys_id INTEGER NOT NULL,
            definition TEXT NOT NULL,
            description TEXT)`,
		`CREATE TABLE gpkg_contents (
            table_name TEXT PRIMARY KEY,
            data_type TEXT NOT NULL,
            identifier TEXT UNIQUE,
            description TEXT DEFAULT '',
            last_change DATETIME,
            min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
            srs_id INTEGER)`,
		`CREATE TABLE gpkg_geometry_columns (
            table_name TEXT NOT NULL,
            column_name TEXT NOT NULL,
            geometry_type_name TEXT NOT NULL,
            srs_id INTEGER NOT NULL,
            z TINYINT NOT NULL,
            m TINYINT NOT NULL,
            PRIMARY KEY (table_name, column_name))`,
		fmt.Sprintf(`CREATE TABLE %s (
            fid INTEGER PRIMARY KEY AUTOINCREMENT,
            geom BLOB)`, quoteIdent(layer)),
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	inserts := []struct {
		query string
		args  []any
	}{
		{
			`INSERT INTO gpkg_spatial_ref_sys
             (srs_name, srs_id, organization, organization_coordsys_id, definition)
             VALUES (?, ?, ?, ?, ?)`,
			[]any{"source spatial reference", writerSRSID, "NONE", 0, spatialRef},
		},
		{
			`INSERT INTO gpkg_contents (table_name, data_type, identifier, last_change, srs_id)
             VALUES (?, 'features', ?, ?, ?)`,
			[]any{layer, layer, now, writerSRSID},
		},
		{
			`INSERT INTO gpkg_geometry_columns
             (table_name, column_name, geometry_type_name, srs_id, z, m)
             VALUES (?, 'geom', 'MULTIPOLYGON', ?, 0, 0)`,
			[]any{layer, writerSRSID},
		},
	}
	for _, ins := range inserts {
		if _, err := db.ExecContext(ctx, ins.query, ins.args...); err != nil {
			return err
		}
	}
	return nil
}

const writerSRSID = 0

type vectorWriter struct {
	db    *sql.DB
	path  string
	layer string
}

func (w *vectorWriter) WriteFeature(geom gis.Geometry) error {
	g, ok := geom.(*Geometry)
	if !ok {
		return fmt.Errorf("gpkg: cannot write %T into %s; geometry must originate from a GeoPackage", geom, w.path)
	}
	query := fmt.Sprintf(`INSERT INTO %s (geom) VALUES (?)`, quoteIdent(w.layer))
	if _, err := w.db.Exec(query, encodeGeometry(writerSRSID, g.wkb)); err != nil {
		return fmt.Errorf("gpkg: write feature into %s: %w", w.path, err)
	}
	return nil
}

func (w *vectorWriter) Close() error { return w.db.Close() }

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
