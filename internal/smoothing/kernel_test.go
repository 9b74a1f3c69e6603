package smoothing_test

import (
	"math"
	"testing"

	"landopt/internal/smoothing"
)

func TestKernelShape(t *testing.T) {
	grid := smoothing.Kernel(1)
	if grid.W != 3 || grid.H != 3 {
		t.Fatalf("kernel size = %dx%d, want 3x3", grid.W, grid.H)
	}

	// Corners lie sqrt(2) from the center, outside radius 1.
	for _, xy := range [][2]int{{0, 0}, {2, 0}, {0, 2}, {2, 2}} {
		if v := grid.At(xy[0], xy[1]); v != 0 {
			t.Fatalf("corner (%d,%d) = %v, want 0", xy[0], xy[1], v)
		}
	}
	for _, xy := range [][2]int{{1, 0}, {0, 1}, {2, 1}, {1, 2}} {
		if v := grid.At(xy[0], xy[1]); v != 1 {
			t.Fatalf("edge (%d,%d) = %v, want 1", xy[0], xy[1], v)
		}
	}
	if v := grid.At(1, 1); v != smoothing.CenterWeight(1) {
		t.Fatalf("center = %v, want %v", v, smoothing.CenterWeight(1))
	}
}

func TestCenterWeight(t *testing.T) {
	if got, want := smoothing.CenterWeight(0), math.Pi; got != want {
		t.Fatalf("CenterWeight(0) = %v, want %v", got, want)
	}
	if got, want := smoothing.CenterWeight(2), 9*math.Pi; got != want {
		t.Fatalf("CenterWeight(2) = %v, want %v", got, want)
	}
}

// A pixel that is on must clear the coverage threshold on its own: the
// center weight exceeds the combined weight of every neighbor cell.
func TestKernelCenterDominatesNeighbors(t *testing.T) {
	for _, radius := range []int{1, 3, 5, 10} {
		grid := smoothing.Kernel(radius)
		var ring float64
		for y := 0; y < grid.H; y++ {
			for x := 0; x < grid.W; x++ {
				if x == radius && y == radius {
					continue
				}
				ring += grid.At(x, y)
			}
		}
		if center := smoothing.CenterWeight(radius); center <= ring {
			t.Fatalf("radius %d: center weight %v does not dominate ring sum %v", radius, center, ring)
		}
	}
}
