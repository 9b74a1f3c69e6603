package raster

import (
	"context"
	"fmt"

	"landopt/internal/gis"
)

// Convolver is an in-process direct 2-D convolution over a raster store.
// The kernels this pipeline uses are small circular neighborhoods, so the
// O(pixels * kernel) direct form is adequate.
type Convolver struct {
	store gis.RasterStore
}

// NewConvolver constructs a convolver backed by the given raster store.
func NewConvolver(store gis.RasterStore) *Convolver {
	return &Convolver{store: store}
}

// Convolve2D convolves one band of signal with one band of kernel and
// writes the result to targetPath. Pixels outside the signal contribute
// zero. When opts.IgnoreNoData is false, nodata signal pixels also
// contribute zero; when opts.MaskNoData is true, they additionally force
// the output pixel to opts.TargetNoData.
func (c *Convolver) Convolve2D(ctx context.Context, signal, kernel gis.PathBand, targetPath string, opts gis.ConvolveOptions) error {
	sigInfo, err := c.store.Info(ctx, signal.Path)
	if err != nil {
		return fmt.Errorf("convolve: signal info: %w", err)
	}
	sig, err := c.store.ReadRegion(ctx, signal, 0, 0, sigInfo.Width, sigInfo.Height)
	if err != nil {
		return fmt.Errorf("convolve: read signal: %w", err)
	}

	kerInfo, err := c.store.Info(ctx, kernel.Path)
	if err != nil {
		return fmt.Errorf("convolve: kernel info: %w", err)
	}
	ker, err := c.store.ReadRegion(ctx, kernel, 0, 0, kerInfo.Width, kerInfo.Height)
	if err != nil {
		return fmt.Errorf("convolve: read kernel: %w", err)
	}
	if ker.W%2 == 0 || ker.H%2 == 0 {
		return fmt.Errorf("convolve: kernel must have odd dimensions, got %dx%d", ker.W, ker.H)
	}
	kcx, kcy := ker.W/2, ker.H/2

	out := gis.NewGrid(sig.W, sig.H)
	for y := 0; y < sig.H; y++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for x := 0; x < sig.W; x++ {
			if opts.MaskNoData && gis.Close(sig.At(x, y), sigInfo.NoData) {
				out.Set(x, y, opts.TargetNoData)
				continue
			}
			var sum float64
			for ky := 0; ky < ker.H; ky++ {
				for kx := 0; kx < ker.W; kx++ {
					sx, sy := x+kx-kcx, y+ky-kcy
					if sx < 0 || sy < 0 || sx >= sig.W || sy >= sig.H {
						continue
					}
					v := sig.At(sx, sy)
					if !opts.IgnoreNoData && gis.Close(v, sigInfo.NoData) {
						continue
					}
					sum += v * ker.At(kx, ky)
				}
			}
			out.Set(x, y, sum)
		}
	}

	info := sigInfo
	info.NoData = opts.TargetNoData
	writer, err := c.store.Create(ctx, targetPath, info)
	if err != nil {
		return fmt.Errorf("convolve: create %s: %w", targetPath, err)
	}
	if err := writer.WriteBlock(gis.Block{Grid: out}); err != nil {
		_ = writer.Close()
		return fmt.Errorf("convolve: write %s: %w", targetPath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("convolve: close %s: %w", targetPath, err)
	}
	return nil
}
