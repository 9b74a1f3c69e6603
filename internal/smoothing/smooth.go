// Package smoothing fills small gaps in a binary mask raster by convolving
// it with a circular neighborhood kernel and re-thresholding the coverage
// result. A pixel turns on when the local coverage exceeds a configured
// fraction of the kernel's theoretical area; the kernel's inflated center
// weight guarantees pixels that are already on stay on.
package smoothing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"landopt/internal/gis"
	"landopt/internal/logging"
	"landopt/internal/raster"
)

// DefaultCoverageFraction is a deliberately low bar: effectively any
// nonzero local coverage turns a pixel on.
const DefaultCoverageFraction = 0.01

const (
	kernelNodata   = -9999
	coverageNodata = -1
	maskNodata     = 255
)

// Engine smooths binary masks using the external convolution primitive.
type Engine struct {
	store     gis.RasterStore
	convolver gis.Convolver
	coverage  float64
	logger    *slog.Logger
}

// NewEngine constructs a smoothing engine. coverageFraction values outside
// (0, 1] fall back to DefaultCoverageFraction.
func NewEngine(store gis.RasterStore, convolver gis.Convolver, coverageFraction float64, logger *slog.Logger) *Engine {
	if coverageFraction <= 0 || coverageFraction > 1 {
		coverageFraction = DefaultCoverageFraction
	}
	return &Engine{
		store:     store,
		convolver: convolver,
		coverage:  coverageFraction,
		logger:    logging.NewComponentLogger(logger, "smoothing"),
	}
}

// SmoothMask fills gaps in the 0/1/nodata mask at baseMaskPath using a
// circular neighborhood of the given radius and writes the smoothed binary
// mask to targetPath. Intermediate rasters live in a temp directory
// created beside the target.
func (e *Engine) SmoothMask(ctx context.Context, baseMaskPath string, radius int, targetPath string) error {
	if radius < 0 {
		return fmt.Errorf("smooth mask: radius must be non-negative, got %d", radius)
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("smooth mask: create target directory: %w", err)
	}
	workingDir, err := os.MkdirTemp(filepath.Dir(targetPath), "smooth-")
	if err != nil {
		return fmt.Errorf("smooth mask: create working directory: %w", err)
	}

	side := 2*radius + 1
	kernelPath := filepath.Join(workingDir, fmt.Sprintf("kernel_%d.tif", side))
	if err := e.writeKernel(ctx, radius, kernelPath); err != nil {
		return err
	}

	convolvedPath := filepath.Join(workingDir, "convolved_mask.tif")
	err = e.convolver.Convolve2D(ctx,
		gis.PathBand{Path: baseMaskPath, Band: 1},
		gis.PathBand{Path: kernelPath, Band: 1},
		convolvedPath,
		gis.ConvolveOptions{
			WorkingDir:   workingDir,
			TargetNoData: coverageNodata,
			IgnoreNoData: false,
			MaskNoData:   false,
		})
	if err != nil {
		return gis.Wrap(gis.ErrExternalTool, "smoothing", "convolve", baseMaskPath, err)
	}

	thresholdVal := e.coverage * CenterWeight(radius)
	e.logger.Debug("thresholding coverage raster",
		logging.String("mask", baseMaskPath),
		logging.Int("radius", radius),
		logging.Float64("threshold", thresholdVal))

	op := func(inputs []gis.Grid) (gis.Grid, error) {
		return raster.Threshold(inputs[0], thresholdVal, coverageNodata, maskNodata), nil
	}
	if err := raster.Calculate(ctx, e.store, []gis.PathBand{{Path: convolvedPath, Band: 1}}, op, targetPath, maskNodata); err != nil {
		return fmt.Errorf("smooth mask: threshold: %w", err)
	}
	return nil
}

func (e *Engine) writeKernel(ctx context.Context, radius int, kernelPath string) error {
	grid := Kernel(radius)
	writer, err := e.store.Create(ctx, kernelPath, gis.RasterInfo{
		Width:     grid.W,
		Height:    grid.H,
		PixelSize: [2]float64{1, -1},
		NoData:    kernelNodata,
	})
	if err != nil {
		return fmt.Errorf("smooth mask: create kernel: %w", err)
	}
	if err := writer.WriteBlock(gis.Block{Grid: grid}); err != nil {
		_ = writer.Close()
		return fmt.Errorf("smooth mask: write kernel: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smooth mask: close kernel: %w", err)
	}
	return nil
}
