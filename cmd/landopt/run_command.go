package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"landopt/internal/align"
	"landopt/internal/fetch"
	"landopt/internal/geotiff"
	"landopt/internal/gpkg"
	"landopt/internal/ledger"
	"landopt/internal/logging"
	"landopt/internal/optimize"
	"landopt/internal/pipeline"
	"landopt/internal/raster"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process every configured source end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx)
		},
	}
}

func runPipeline(cmd *cobra.Command, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("landopt-%s.log", stamp))
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		logger.Error("open ledger store", logging.Error(err))
		return err
	}
	defer store.Close()

	rasters := geotiff.NewStore()
	manager, err := pipeline.NewManager(cfg, store, logger, pipeline.Deps{
		Rasters:   rasters,
		Vectors:   gpkg.NewStore(),
		Convolver: raster.NewConvolver(rasters),
		Aligner:   align.NewExecAligner(cfg.Tools.AlignBinary, logger),
		Optimizer: optimize.NewClient(cfg.Tools.OptimizerBinary, logger),
		Fetcher:   fetch.NewClient(cfg.Tools.FetchBinary, logger),
	})
	if err != nil {
		return err
	}

	summary, err := manager.Run(signalCtx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run finished: %d completed, %d failed, %d skipped\n",
		summary.Completed, summary.Failed, summary.Skipped)
	if summary.Failed > 0 {
		fmt.Fprintf(out, "Failure details: %s and `landopt status --failed`\n",
			filepath.Join(cfg.Paths.WorkspaceDir, "errors.log"))
	}
	return nil
}
