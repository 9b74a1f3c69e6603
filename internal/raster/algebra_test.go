package raster_test

import (
	"testing"

	"landopt/internal/gis"
	"landopt/internal/raster"
)

func gridOf(w, h int, values ...float64) gis.Grid {
	g := gis.NewGrid(w, h)
	copy(g.Data, values)
	return g
}

func TestThresholdExcludesNodataAndZero(t *testing.T) {
	base := gridOf(5, 1, -1, 0, 0.5, 2, 1e-9)
	got := raster.Threshold(base, 1, -1, 255)

	want := []float64{255, 255, 0, 1, 255}
	for i, v := range want {
		if got.Data[i] != v {
			t.Fatalf("pixel %d: got %v, want %v", i, got.Data[i], v)
		}
	}
}

func TestThresholdBoundaryIsInclusive(t *testing.T) {
	base := gridOf(2, 1, 1, 0.999)
	got := raster.Threshold(base, 1, -1, 255)

	if got.Data[0] != 1 {
		t.Fatalf("value equal to threshold should pass, got %v", got.Data[0])
	}
	if got.Data[1] != 0 {
		t.Fatalf("value below threshold should fail, got %v", got.Data[1])
	}
}

func TestProportionDividesValidPixels(t *testing.T) {
	base := gridOf(3, 1, 2, -1, 4)
	got := raster.Proportion(base, 8, -1, 255)

	want := []float64{0.25, 255, 0.5}
	for i, v := range want {
		if got.Data[i] != v {
			t.Fatalf("pixel %d: got %v, want %v", i, got.Data[i], v)
		}
	}
}

func TestSumManyUnionValidity(t *testing.T) {
	a := gridOf(3, 1, 1, -1, -1)
	b := gridOf(3, 1, 2, 3, -1)

	got, err := raster.SumMany(-1, a, b)
	if err != nil {
		t.Fatalf("SumMany failed: %v", err)
	}

	want := []float64{3, 3, -1}
	for i, v := range want {
		if got.Data[i] != v {
			t.Fatalf("pixel %d: got %v, want %v", i, got.Data[i], v)
		}
	}
}

func TestSumManyRejectsMismatchedGrids(t *testing.T) {
	a := gridOf(2, 1, 1, 2)
	b := gridOf(3, 1, 1, 2, 3)
	if _, err := raster.SumMany(-1, a, b); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestSumManyRequiresInputs(t *testing.T) {
	if _, err := raster.SumMany(-1); err == nil {
		t.Fatal("expected error for empty input stack")
	}
}
