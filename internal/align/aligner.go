// Package align prepares a per-region raster stack: every input is
// resampled to a common pixel size, cropped to the intersection of the
// input extents, and masked to the region geometry.
package align

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"landopt/internal/gis"
	"landopt/internal/logging"
)

// Aligner wraps the external multi-raster resample/clip primitive.
type Aligner struct {
	primitive gis.StackAligner
	store     gis.RasterStore
	logger    *slog.Logger
}

// New constructs an aligner.
func New(primitive gis.StackAligner, store gis.RasterStore, logger *slog.Logger) *Aligner {
	return &Aligner{
		primitive: primitive,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "align"),
	}
}

// Align clips and resamples the input rasters to the given output paths:
// nearest-neighbor resampling for every input, target pixel size equal to
// the minimum absolute pixel size among the inputs (no input is upsampled
// beyond its native resolution), bounds equal to the intersection of the
// input extents, and pixels outside the region geometry set to nodata.
func (a *Aligner) Align(ctx context.Context, inputs, outputs []string, regionVectorPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("align: no input rasters")
	}
	if len(inputs) != len(outputs) {
		return fmt.Errorf("align: %d inputs but %d outputs", len(inputs), len(outputs))
	}

	pixel, err := MinPixelSize(ctx, a.store, inputs)
	if err != nil {
		return err
	}

	resampling := make([]string, len(inputs))
	for i := range resampling {
		resampling[i] = gis.ResampleNearest
	}

	a.logger.Debug("aligning raster stack",
		logging.Int("rasters", len(inputs)),
		logging.Float64("pixel_size", pixel),
		logging.String("mask", regionVectorPath))

	err = a.primitive.AlignAndResize(ctx, gis.AlignRequest{
		Inputs:          inputs,
		Outputs:         outputs,
		Resampling:      resampling,
		PixelSize:       [2]float64{pixel, -pixel},
		BoundingMode:    gis.BoundingIntersection,
		MaskVectorPath:  regionVectorPath,
		BaseVectorPaths: []string{regionVectorPath},
	})
	if err != nil {
		return gis.Wrap(gis.ErrExternalTool, "align", "resample stack", regionVectorPath, err)
	}
	return nil
}

// MinPixelSize returns the smallest absolute pixel width among the rasters.
func MinPixelSize(ctx context.Context, store gis.RasterStore, paths []string) (float64, error) {
	min := math.Inf(1)
	for _, path := range paths {
		info, err := store.Info(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("align: info %s: %w", path, err)
		}
		if size := math.Abs(info.PixelSize[0]); size < min {
			min = size
		}
	}
	if math.IsInf(min, 1) {
		return 0, fmt.Errorf("align: no pixel sizes found")
	}
	return min, nil
}
