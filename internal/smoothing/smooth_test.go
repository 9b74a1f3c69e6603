package smoothing_test

import (
	"context"
	"path/filepath"
	"testing"

	"landopt/internal/gis"
	"landopt/internal/logging"
	"landopt/internal/raster"
	"landopt/internal/smoothing"
	"landopt/internal/testsupport"
)

func TestSmoothMaskGrowsAroundOnPixels(t *testing.T) {
	store := testsupport.NewFakeGIS()
	dir := t.TempDir()

	base := filepath.Join(dir, "mask.tif")
	grid := gis.NewGrid(5, 5)
	grid.Set(2, 2, 1)
	info := gis.RasterInfo{Width: 5, Height: 5, PixelSize: [2]float64{30, -30}, NoData: 255}
	if err := store.AddRaster(base, info, grid); err != nil {
		t.Fatalf("AddRaster: %v", err)
	}

	engine := smoothing.NewEngine(store, raster.NewConvolver(store), smoothing.DefaultCoverageFraction, logging.NewNop())
	target := filepath.Join(dir, "smoothed", "mask.tif")
	if err := engine.SmoothMask(context.Background(), base, 1, target); err != nil {
		t.Fatalf("SmoothMask failed: %v", err)
	}

	out := store.Raster(target)
	if out == nil {
		t.Fatal("smoothed raster was not created")
	}
	if out.Info.NoData != 255 {
		t.Fatalf("smoothed nodata = %v, want 255", out.Info.NoData)
	}

	// The on pixel stays on and its 4-neighborhood turns on; everything
	// farther away saw zero coverage and is nodata.
	on := map[[2]int]bool{
		{2, 2}: true, {1, 2}: true, {3, 2}: true, {2, 1}: true, {2, 3}: true,
	}
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			want := 255.0
			if on[[2]int{x, y}] {
				want = 1
			}
			if got := out.Grid.At(x, y); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestSmoothMaskPreservesOnPixelsWithoutSupport(t *testing.T) {
	store := testsupport.NewFakeGIS()
	dir := t.TempDir()

	// A lone on pixel surrounded by nodata has no neighbor coverage at
	// all; the inflated kernel center must still keep it on.
	base := filepath.Join(dir, "mask.tif")
	grid := gis.NewGrid(3, 3)
	for i := range grid.Data {
		grid.Data[i] = 255
	}
	grid.Set(1, 1, 1)
	info := gis.RasterInfo{Width: 3, Height: 3, PixelSize: [2]float64{30, -30}, NoData: 255}
	if err := store.AddRaster(base, info, grid); err != nil {
		t.Fatalf("AddRaster: %v", err)
	}

	engine := smoothing.NewEngine(store, raster.NewConvolver(store), 1, logging.NewNop())
	target := filepath.Join(dir, "out.tif")
	if err := engine.SmoothMask(context.Background(), base, 2, target); err != nil {
		t.Fatalf("SmoothMask failed: %v", err)
	}

	out := store.Raster(target)
	if got := out.Grid.At(1, 1); got != 1 {
		t.Fatalf("lone on pixel = %v, want 1", got)
	}
}

func TestSmoothMaskRejectsNegativeRadius(t *testing.T) {
	store := testsupport.NewFakeGIS()
	engine := smoothing.NewEngine(store, raster.NewConvolver(store), smoothing.DefaultCoverageFraction, logging.NewNop())
	if err := engine.SmoothMask(context.Background(), "mask.tif", -1, filepath.Join(t.TempDir(), "out.tif")); err == nil {
		t.Fatal("expected error for negative radius")
	}
}
