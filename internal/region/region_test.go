package region_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"landopt/internal/gis"
	"landopt/internal/logging"
	"landopt/internal/region"
	"landopt/internal/testsupport"
)

func globalVector(t *testing.T, store *testsupport.FakeGIS) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "countries.gpkg")
	err := store.AddVector(path, testsupport.MemVector{
		SRS:   "GEOGCS[\"WGS 84\"]",
		Field: "iso3",
		Features: []testsupport.MemFeature{
			{FID: 1, Value: "BIG", Area: 50},
			{FID: 2, Value: "SML", Area: 10},
			{FID: 3, Value: "MID", Area: 30},
		},
	})
	if err != nil {
		t.Fatalf("AddVector: %v", err)
	}
	return path
}

func TestEnumerateSortsByAreaAscending(t *testing.T) {
	store := testsupport.NewFakeGIS()
	path := globalVector(t, store)

	regions, err := region.Enumerate(context.Background(), store, path, "iso3")
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	var labels []string
	for _, r := range regions {
		labels = append(labels, r.Label)
	}
	want := []string{"SML", "MID", "BIG"}
	for i, label := range want {
		if labels[i] != label {
			t.Fatalf("order = %v, want %v", labels, want)
		}
	}
}

func TestEnumerateUnknownVector(t *testing.T) {
	store := testsupport.NewFakeGIS()
	if _, err := region.Enumerate(context.Background(), store, "missing.gpkg", "iso3"); err == nil {
		t.Fatal("expected error for missing vector")
	}
}

func TestFilterSkipped(t *testing.T) {
	regions := []region.Region{
		{Label: "SML"}, {Label: "MID"}, {Label: "BIG"},
	}

	kept := region.FilterSkipped(regions, []string{"MID"})
	if len(kept) != 2 || kept[0].Label != "SML" || kept[1].Label != "BIG" {
		t.Fatalf("unexpected regions after filter: %+v", kept)
	}

	// Skip-listed labels absent from the data are ignored.
	kept = region.FilterSkipped(regions, []string{"XXX"})
	if len(kept) != 3 {
		t.Fatalf("absent skip label should be a no-op, got %+v", kept)
	}

	kept = region.FilterSkipped(regions, nil)
	if len(kept) != 3 {
		t.Fatalf("empty skip list should keep everything, got %+v", kept)
	}
}

func TestExtractWritesSingleFeatureVector(t *testing.T) {
	store := testsupport.NewFakeGIS()
	path := globalVector(t, store)
	target := filepath.Join(t.TempDir(), "regions", "MID.gpkg")

	extractor := region.NewExtractor(store, logging.NewNop())
	if err := extractor.Extract(context.Background(), path, "iso3", "MID", target); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	out := store.Vector(target)
	if out == nil {
		t.Fatal("target vector was not created")
	}
	if len(out.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(out.Features))
	}
	if out.Features[0].Area != 30 {
		t.Fatalf("feature area = %v, want 30", out.Features[0].Area)
	}
	if out.SRS != "GEOGCS[\"WGS 84\"]" {
		t.Fatalf("spatial reference not carried over: %q", out.SRS)
	}
}

func TestExtractMissingValue(t *testing.T) {
	store := testsupport.NewFakeGIS()
	path := globalVector(t, store)

	extractor := region.NewExtractor(store, logging.NewNop())
	err := extractor.Extract(context.Background(), path, "iso3", "XXX", filepath.Join(t.TempDir(), "out.gpkg"))
	if !errors.Is(err, gis.ErrNotFound) {
		t.Fatalf("error = %v, want gis.ErrNotFound", err)
	}
}
