// Package pipeline orchestrates the per-region land-area optimization run:
// fetch source bundles, enumerate regions, and for each region extract its
// geometry, align the raster stack to it, optionally smooth mask rasters,
// and hand the clipped stack to the optimization routine. Regions fail
// independently; a run only aborts on global preconditions such as a fetch
// failure or an unreadable region vector.
package pipeline

import (
	"fmt"
	"log/slog"

	"landopt/internal/align"
	"landopt/internal/config"
	"landopt/internal/gis"
	"landopt/internal/ledger"
	"landopt/internal/logging"
	"landopt/internal/region"
	"landopt/internal/smoothing"
)

// Deps bundles the external collaborators a run needs. All fields are
// required except Convolver, which may be nil when no mask rasters are
// configured for smoothing.
type Deps struct {
	Rasters   gis.RasterStore
	Vectors   gis.VectorStore
	Convolver gis.Convolver
	Aligner   gis.StackAligner
	Optimizer gis.Optimizer
	Fetcher   gis.Fetcher
}

// Manager coordinates pipeline runs against a configuration and ledger.
type Manager struct {
	cfg    *config.Config
	store  *ledger.Store
	logger *slog.Logger
	deps   Deps

	extractor *region.Extractor
	aligner   *align.Aligner
	smoother  *smoothing.Engine
}

// NewManager validates the dependency set and constructs a manager.
func NewManager(cfg *config.Config, store *ledger.Store, logger *slog.Logger, deps Deps) (*Manager, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("pipeline: config is required")
	case store == nil:
		return nil, fmt.Errorf("pipeline: ledger store is required")
	case deps.Rasters == nil:
		return nil, fmt.Errorf("pipeline: raster store is required")
	case deps.Vectors == nil:
		return nil, fmt.Errorf("pipeline: vector store is required")
	case deps.Aligner == nil:
		return nil, fmt.Errorf("pipeline: aligner is required")
	case deps.Optimizer == nil:
		return nil, fmt.Errorf("pipeline: optimizer is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("pipeline: fetcher is required")
	}
	if len(cfg.Smoothing.MaskRasters) > 0 && deps.Convolver == nil {
		return nil, fmt.Errorf("pipeline: convolver is required when mask rasters are configured")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	m := &Manager{
		cfg:       cfg,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		deps:      deps,
		extractor: region.NewExtractor(deps.Vectors, logger),
		aligner:   align.New(deps.Aligner, deps.Rasters, logger),
	}
	if deps.Convolver != nil {
		m.smoother = smoothing.NewEngine(deps.Rasters, deps.Convolver, cfg.Smoothing.CoverageFraction, logger)
	}
	return m, nil
}

// Summary is the outcome tally of one run.
type Summary struct {
	Completed int
	Failed    int
	Skipped   int
}
