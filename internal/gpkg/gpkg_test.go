package gpkg

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"landopt/internal/gis"
)

const testSRS = `GEOGCS["WGS 84",DATUM["WGS_1984"]]`

// buildCountriesPackage creates a three-feature package with an iso3
// attribute, the shape the global region vector arrives in.
func buildCountriesPackage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "countries.gpkg")
	store := NewStore()

	writer, err := store.CreateVector(context.Background(), path, "countries", testSRS)
	if err != nil {
		t.Fatalf("CreateVector failed: %v", err)
	}
	features := []struct {
		label string
		poly  []byte
	}{
		{"BIG", polygonWKB([][2]float64{{0, 0}, {5, 0}, {5, 10}, {0, 10}, {0, 0}})},
		{"SML", polygonWKB(unitSquare(20, 20))},
		{"MID", polygonWKB([][2]float64{{0, 0}, {6, 0}, {6, 5}, {0, 5}, {0, 0}})},
	}
	for _, feat := range features {
		geom, err := decodeGeometry(encodeGeometry(writerSRSID, feat.poly))
		if err != nil {
			t.Fatalf("decode %s: %v", feat.label, err)
		}
		if err := writer.WriteFeature(geom); err != nil {
			t.Fatalf("WriteFeature %s: %v", feat.label, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open for attributes: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`ALTER TABLE "countries" ADD COLUMN iso3 TEXT`); err != nil {
		t.Fatalf("add attribute column: %v", err)
	}
	for i, feat := range features {
		if _, err := db.Exec(`UPDATE "countries" SET iso3 = ? WHERE fid = ?`, feat.label, i+1); err != nil {
			t.Fatalf("set attribute %s: %v", feat.label, err)
		}
	}
	return path
}

func TestOpenVectorEnumeratesFeatures(t *testing.T) {
	path := buildCountriesPackage(t)
	store := NewStore()

	dataset, err := store.OpenVector(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenVector failed: %v", err)
	}
	defer dataset.Close()

	if dataset.SpatialRef() != testSRS {
		t.Fatalf("spatial ref = %q, want %q", dataset.SpatialRef(), testSRS)
	}

	features, err := dataset.Features(context.Background(), "iso3")
	if err != nil {
		t.Fatalf("Features failed: %v", err)
	}
	if len(features) != 3 {
		t.Fatalf("got %d features, want 3", len(features))
	}
	areas := map[string]float64{}
	for _, feat := range features {
		areas[feat.Value] = feat.Area
	}
	if areas["BIG"] != 50 || areas["SML"] != 1 || areas["MID"] != 30 {
		t.Fatalf("unexpected areas: %v", areas)
	}
}

func TestFindFirstFiltersOnAttribute(t *testing.T) {
	path := buildCountriesPackage(t)
	store := NewStore()

	dataset, err := store.OpenVector(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenVector failed: %v", err)
	}
	defer dataset.Close()

	geom, err := dataset.FindFirst(context.Background(), "iso3", "MID")
	if err != nil {
		t.Fatalf("FindFirst failed: %v", err)
	}
	if geom.Area() != 30 {
		t.Fatalf("area = %v, want 30", geom.Area())
	}

	if _, err := dataset.FindFirst(context.Background(), "iso3", "XXX"); !errors.Is(err, gis.ErrNotFound) {
		t.Fatalf("missing value error = %v, want gis.ErrNotFound", err)
	}
}

func TestCreateVectorRoundTrip(t *testing.T) {
	source := buildCountriesPackage(t)
	store := NewStore()
	ctx := context.Background()

	dataset, err := store.OpenVector(ctx, source)
	if err != nil {
		t.Fatalf("OpenVector failed: %v", err)
	}
	geom, err := dataset.FindFirst(ctx, "iso3", "SML")
	if err != nil {
		t.Fatalf("FindFirst failed: %v", err)
	}
	if err := dataset.Close(); err != nil {
		t.Fatalf("close source: %v", err)
	}

	target := filepath.Join(t.TempDir(), "region", "SML.gpkg")
	writer, err := store.CreateVector(ctx, target, "SML", testSRS)
	if err != nil {
		t.Fatalf("CreateVector failed: %v", err)
	}
	if err := writer.WriteFeature(geom.Clone()); err != nil {
		t.Fatalf("WriteFeature failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close target: %v", err)
	}

	reopened, err := store.OpenVector(ctx, target)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	clone, err := reopened.FindFirst(ctx, "fid", "1")
	if err != nil {
		t.Fatalf("FindFirst on clone failed: %v", err)
	}
	if clone.Area() != 1 {
		t.Fatalf("clone area = %v, want 1", clone.Area())
	}
}

func TestOpenVectorMissingFile(t *testing.T) {
	store := NewStore()
	if _, err := store.OpenVector(context.Background(), filepath.Join(t.TempDir(), "missing.gpkg")); err == nil {
		t.Fatal("expected error for missing package")
	}
}

func TestWriteFeatureRejectsForeignGeometry(t *testing.T) {
	store := NewStore()
	writer, err := store.CreateVector(context.Background(), filepath.Join(t.TempDir(), "out.gpkg"), "layer", testSRS)
	if err != nil {
		t.Fatalf("CreateVector failed: %v", err)
	}
	defer writer.Close()

	if err := writer.WriteFeature(foreignGeometry{}); err == nil {
		t.Fatal("expected error for geometry from another store")
	}
}

type foreignGeometry struct{}

func (foreignGeometry) Area() float64       { return 0 }
func (foreignGeometry) Clone() gis.Geometry { return foreignGeometry{} }
