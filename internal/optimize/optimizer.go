// Package optimize drives the external per-region optimization routine.
// The routine consumes a clipped raster stack plus working and output
// directories and writes a deterministically named results table; its
// internal algorithm is out of scope here.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"landopt/internal/gis"
	"landopt/internal/logging"
)

// ResultsPath returns the deterministic results table location for a
// region label. Its existence is the idempotent-resume marker: a region
// whose results file exists is never resubmitted.
func ResultsPath(outputDir, label string) string {
	return filepath.Join(outputDir, "results_"+label+".csv")
}

// Client implements gis.Optimizer by invoking a configured executable.
//
// Invocation contract:
//
//	<binary> --working-dir <dir> --output-dir <dir> --suffix <label> <path>:<band> ...
//
// The routine must write results_<label>.csv under the output directory;
// a run that exits zero without producing it is treated as a failure.
type Client struct {
	binary string
	logger *slog.Logger
}

// NewClient constructs an optimizer client around the given executable.
func NewClient(binary string, logger *slog.Logger) *Client {
	return &Client{binary: binary, logger: logging.NewComponentLogger(logger, "optimize")}
}

// Optimize runs the routine for one region.
func (c *Client) Optimize(ctx context.Context, req gis.OptimizeRequest) error {
	for _, dir := range []string{req.WorkingDir, req.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return gis.Wrap(nil, "optimize", "create directory", dir, err)
		}
	}

	args := []string{
		"--working-dir", req.WorkingDir,
		"--output-dir", req.OutputDir,
		"--suffix", req.Suffix,
	}
	for _, pb := range req.Stack {
		args = append(args, pb.Path+":"+strconv.Itoa(pb.Band))
	}

	c.logger.Info("optimization started",
		logging.String(logging.FieldRegion, req.Suffix),
		logging.Int("rasters", len(req.Stack)))

	cmd := exec.CommandContext(ctx, c.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = err.Error()
		}
		return gis.Wrap(gis.ErrExternalTool, "optimize", req.Suffix, detail, err)
	}

	resultsPath := ResultsPath(req.OutputDir, req.Suffix)
	if _, err := os.Stat(resultsPath); err != nil {
		return gis.Wrap(gis.ErrExternalTool, "optimize", req.Suffix,
			fmt.Sprintf("routine exited cleanly but %s is missing", resultsPath), err)
	}

	c.logger.Info("optimization completed", logging.String(logging.FieldRegion, req.Suffix))
	return nil
}
