package raster_test

import (
	"context"
	"path/filepath"
	"testing"

	"landopt/internal/gis"
	"landopt/internal/raster"
	"landopt/internal/testsupport"
)

func TestCalculateAppliesOpBlockwise(t *testing.T) {
	store := testsupport.NewFakeGIS()
	store.BlockRows = 1 // force multiple blocks

	dir := t.TempDir()
	info := gis.RasterInfo{Width: 3, Height: 2, PixelSize: [2]float64{30, -30}, NoData: -1}
	a := filepath.Join(dir, "a.tif")
	b := filepath.Join(dir, "b.tif")
	if err := store.AddRaster(a, info, gridOf(3, 2, 1, 2, 3, 4, 5, 6)); err != nil {
		t.Fatalf("AddRaster a: %v", err)
	}
	if err := store.AddRaster(b, info, gridOf(3, 2, 10, 20, 30, 40, 50, 60)); err != nil {
		t.Fatalf("AddRaster b: %v", err)
	}

	sum := func(inputs []gis.Grid) (gis.Grid, error) {
		return raster.SumMany(-1, inputs...)
	}
	target := filepath.Join(dir, "sum.tif")
	err := raster.Calculate(context.Background(), store,
		[]gis.PathBand{{Path: a, Band: 1}, {Path: b, Band: 1}}, sum, target, -1)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	out := store.Raster(target)
	if out == nil {
		t.Fatal("target raster was not created")
	}
	if out.Info.NoData != -1 {
		t.Fatalf("target nodata = %v, want -1", out.Info.NoData)
	}
	want := []float64{11, 22, 33, 44, 55, 66}
	for i, v := range want {
		if out.Grid.Data[i] != v {
			t.Fatalf("pixel %d: got %v, want %v", i, out.Grid.Data[i], v)
		}
	}
}

func TestCalculateRejectsMismatchedInputs(t *testing.T) {
	store := testsupport.NewFakeGIS()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.tif")
	b := filepath.Join(dir, "b.tif")
	if err := store.AddRaster(a, gis.RasterInfo{Width: 2, Height: 1, NoData: -1}, gridOf(2, 1, 1, 2)); err != nil {
		t.Fatalf("AddRaster a: %v", err)
	}
	if err := store.AddRaster(b, gis.RasterInfo{Width: 3, Height: 1, NoData: -1}, gridOf(3, 1, 1, 2, 3)); err != nil {
		t.Fatalf("AddRaster b: %v", err)
	}

	identity := func(inputs []gis.Grid) (gis.Grid, error) { return inputs[0], nil }
	err := raster.Calculate(context.Background(), store,
		[]gis.PathBand{{Path: a, Band: 1}, {Path: b, Band: 1}}, identity, filepath.Join(dir, "out.tif"), -1)
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestSumRasterExcludesNodata(t *testing.T) {
	store := testsupport.NewFakeGIS()
	dir := t.TempDir()
	path := filepath.Join(dir, "v.tif")
	info := gis.RasterInfo{Width: 4, Height: 1, NoData: -1}
	if err := store.AddRaster(path, info, gridOf(4, 1, 1, -1, 2.5, -1)); err != nil {
		t.Fatalf("AddRaster: %v", err)
	}

	total, err := raster.SumRaster(context.Background(), store, gis.PathBand{Path: path, Band: 1})
	if err != nil {
		t.Fatalf("SumRaster failed: %v", err)
	}
	if total != 3.5 {
		t.Fatalf("total = %v, want 3.5", total)
	}
}
