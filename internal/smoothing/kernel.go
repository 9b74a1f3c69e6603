package smoothing

import (
	"math"

	"landopt/internal/gis"
)

// Kernel builds the circular neighborhood kernel for the given radius. The
// side length is 2*radius+1; cells within radius of the center weigh 1 and
// the rest 0, except the center cell which is overwritten with
// pi*(radius+1)^2 so that a pixel that is itself on always clears the
// coverage threshold regardless of neighbor support.
func Kernel(radius int) gis.Grid {
	side := 2*radius + 1
	grid := gis.NewGrid(side, side)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			dx := float64(x - radius)
			dy := float64(y - radius)
			if math.Sqrt(dx*dx+dy*dy) <= float64(radius) {
				grid.Set(x, y, 1)
			}
		}
	}
	grid.Set(radius, radius, CenterWeight(radius))
	return grid
}

// CenterWeight returns the inflated center cell weight for a radius.
func CenterWeight(radius int) float64 {
	r := float64(radius)
	return math.Pi * (r + 1) * (r + 1)
}
