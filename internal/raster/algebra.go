package raster

import (
	"fmt"

	"landopt/internal/gis"
)

// Threshold maps base to a 0/1 grid. Pixels equal to baseNodata or exactly
// zero are excluded and set to targetNodata; every other pixel becomes 1
// when its value is at least thresholdVal, else 0.
func Threshold(base gis.Grid, thresholdVal, baseNodata, targetNodata float64) gis.Grid {
	out := gis.NewGrid(base.W, base.H)
	for i, v := range base.Data {
		if gis.Close(v, baseNodata) || gis.Close(v, 0) {
			out.Data[i] = targetNodata
			continue
		}
		if v >= thresholdVal {
			out.Data[i] = 1
		}
	}
	return out
}

// Proportion divides every valid pixel of base by total. Pixels equal to
// baseNodata are set to targetNodata and never influence other pixels.
func Proportion(base gis.Grid, total, baseNodata, targetNodata float64) gis.Grid {
	out := gis.NewGrid(base.W, base.H)
	for i, v := range base.Data {
		if gis.Close(v, baseNodata) {
			out.Data[i] = targetNodata
			continue
		}
		out.Data[i] = v / total
	}
	return out
}

// SumMany sums a stack of aligned grids. A pixel is valid when any input
// is valid there; invalid inputs contribute zero. The output is nodata
// only where every input is invalid.
func SumMany(nodata float64, grids ...gis.Grid) (gis.Grid, error) {
	if len(grids) == 0 {
		return gis.Grid{}, fmt.Errorf("sum: no input grids")
	}
	w, h := grids[0].W, grids[0].H
	for i, g := range grids {
		if g.W != w || g.H != h {
			return gis.Grid{}, fmt.Errorf("sum: grid %d is %dx%d, want %dx%d", i, g.W, g.H, w, h)
		}
	}
	out := gis.NewGrid(w, h)
	anyValid := make([]bool, w*h)
	for _, g := range grids {
		for i, v := range g.Data {
			if gis.Close(v, nodata) {
				continue
			}
			out.Data[i] += v
			anyValid[i] = true
		}
	}
	for i, valid := range anyValid {
		if !valid {
			out.Data[i] = nodata
		}
	}
	return out, nil
}
