package raster

import (
	"context"
	"fmt"

	"landopt/internal/gis"
)

// Op is an elementwise operator applied to one aligned block from each
// input raster. Inputs arrive in registration order and share dimensions.
type Op func(inputs []gis.Grid) (gis.Grid, error)

// Calculate applies op block-wise across the input rasters and writes the
// result to targetPath with targetNodata as the nodata sentinel. Inputs
// must already share pixel size and extent; the blocks of the first input
// drive the iteration and matching windows are read from the rest.
func Calculate(ctx context.Context, store gis.RasterStore, inputs []gis.PathBand, op Op, targetPath string, targetNodata float64) error {
	if len(inputs) == 0 {
		return fmt.Errorf("calculate: no inputs")
	}
	first, err := store.Info(ctx, inputs[0].Path)
	if err != nil {
		return fmt.Errorf("calculate: info %s: %w", inputs[0].Path, err)
	}
	for _, pb := range inputs[1:] {
		info, err := store.Info(ctx, pb.Path)
		if err != nil {
			return fmt.Errorf("calculate: info %s: %w", pb.Path, err)
		}
		if info.Width != first.Width || info.Height != first.Height {
			return fmt.Errorf("calculate: %s is %dx%d, want %dx%d", pb.Path, info.Width, info.Height, first.Width, first.Height)
		}
	}

	writer, err := store.Create(ctx, targetPath, gis.RasterInfo{
		Width:     first.Width,
		Height:    first.Height,
		PixelSize: first.PixelSize,
		NoData:    targetNodata,
	})
	if err != nil {
		return fmt.Errorf("calculate: create %s: %w", targetPath, err)
	}

	iterErr := store.ReadBlocks(ctx, inputs[0], func(block gis.Block) error {
		grids := make([]gis.Grid, 0, len(inputs))
		grids = append(grids, block.Grid)
		for _, pb := range inputs[1:] {
			grid, err := store.ReadRegion(ctx, pb, block.X, block.Y, block.Grid.W, block.Grid.H)
			if err != nil {
				return fmt.Errorf("read %s: %w", pb.Path, err)
			}
			grids = append(grids, grid)
		}
		out, err := op(grids)
		if err != nil {
			return err
		}
		return writer.WriteBlock(gis.Block{X: block.X, Y: block.Y, Grid: out})
	})
	if iterErr != nil {
		_ = writer.Close()
		return fmt.Errorf("calculate: %w", iterErr)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("calculate: close %s: %w", targetPath, err)
	}
	return nil
}

// SumRaster accumulates every valid pixel of a band into a scalar,
// excluding pixels that match the band's nodata sentinel within tolerance.
func SumRaster(ctx context.Context, store gis.RasterStore, pb gis.PathBand) (float64, error) {
	info, err := store.Info(ctx, pb.Path)
	if err != nil {
		return 0, fmt.Errorf("sum raster: info %s: %w", pb.Path, err)
	}
	var total float64
	err = store.ReadBlocks(ctx, pb, func(block gis.Block) error {
		for _, v := range block.Grid.Data {
			if gis.Close(v, info.NoData) {
				continue
			}
			total += v
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sum raster: %w", err)
	}
	return total, nil
}
