package align

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"landopt/internal/gis"
	"landopt/internal/logging"
)

// ExecAligner implements gis.StackAligner by invoking a gdalwarp-compatible
// executable once per input. All inputs share the pixel size and the
// target-aligned grid, and each output is cropped to the cutline vector, so
// the resulting stack is pixel-aligned.
//
// The request's BoundingMode and BaseVectorPaths are not forwarded to the
// tool: cropping every output to the same cutline extent stands in for the
// extent intersection, and pixels an input does not cover come back as
// nodata. Callers needing a true multi-input intersection without a mask
// vector must use a different StackAligner.
type ExecAligner struct {
	binary string
	logger *slog.Logger
}

// NewExecAligner constructs an aligner around the given executable.
func NewExecAligner(binary string, logger *slog.Logger) *ExecAligner {
	return &ExecAligner{binary: binary, logger: logging.NewComponentLogger(logger, "align")}
}

// AlignAndResize implements gis.StackAligner.
func (a *ExecAligner) AlignAndResize(ctx context.Context, req gis.AlignRequest) error {
	if len(req.Inputs) != len(req.Outputs) {
		return fmt.Errorf("align: %d inputs but %d outputs", len(req.Inputs), len(req.Outputs))
	}
	px := strconv.FormatFloat(math.Abs(req.PixelSize[0]), 'g', -1, 64)
	py := strconv.FormatFloat(math.Abs(req.PixelSize[1]), 'g', -1, 64)

	for i, input := range req.Inputs {
		output := req.Outputs[i]
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return fmt.Errorf("align: create directory for %s: %w", output, err)
		}

		args := []string{
			"-overwrite",
			"-of", "GTiff",
			"-r", req.Resampling[i],
			"-tr", px, py,
			"-tap",
		}
		if req.MaskVectorPath != "" {
			args = append(args, "-cutline", req.MaskVectorPath, "-crop_to_cutline")
		}
		args = append(args, input, output)

		a.logger.Debug("warping raster",
			logging.String("input", input),
			logging.String("output", output))
		cmd := exec.CommandContext(ctx, a.binary, args...)
		combined, err := cmd.CombinedOutput()
		if err != nil {
			detail := strings.TrimSpace(string(combined))
			if detail == "" {
				detail = err.Error()
			}
			return gis.Wrap(gis.ErrExternalTool, "align", "warp "+filepath.Base(input), detail, err)
		}
	}
	return nil
}
