package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"landopt/internal/config"
	"landopt/internal/gis"
	"landopt/internal/ledger"
	"landopt/internal/logging"
	"landopt/internal/optimize"
	"landopt/internal/region"
	"landopt/internal/taskgraph"
	"landopt/internal/workerpool"
)

// Run executes the full pipeline once: every configured source, every
// non-skipped region. It takes an exclusive workspace lock for the
// duration, so concurrent runs against the same workspace are rejected.
func (m *Manager) Run(ctx context.Context) (Summary, error) {
	if err := m.cfg.EnsureDirectories(); err != nil {
		return Summary{}, err
	}

	lockPath := filepath.Join(m.cfg.Paths.WorkspaceDir, "landopt.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return Summary{}, fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !locked {
		return Summary{}, fmt.Errorf("another run holds the workspace lock at %s", lockPath)
	}
	defer func() { _ = lock.Unlock() }()

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, m.logger)
	logger.Info("run started", logging.Int("sources", len(m.cfg.Sources)))

	run := &runState{
		manager: m,
		runID:   runID,
		graph:   taskgraph.New(ctx, m.logger, m.cfg.Run.GraphWorkers),
		pool:    workerpool.New(m.logger, m.cfg.Run.Workers),
		errLog:  newErrorLog(filepath.Join(m.cfg.Paths.WorkspaceDir, "errors.log")),
	}

	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		for result := range run.pool.Results() {
			run.recordResult(ctx, result)
		}
	}()

	var runErr error
	for _, src := range m.cfg.Sources {
		if err := run.processSource(ctx, src); err != nil {
			runErr = err
			break
		}
	}

	// Region-level failures were already consumed at per-task joins; a
	// JoinAll error here only repeats them.
	if err := run.graph.JoinAll(); err != nil && runErr == nil {
		logger.Debug("task graph drained with failures", logging.Error(err))
	}
	run.graph.Close()
	run.pool.Join()
	<-aggregated

	summary := run.snapshot()
	logger.Info("run finished",
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped))
	return summary, runErr
}

// runState carries the per-run machinery shared by source and region
// processing.
type runState struct {
	manager *Manager
	runID   string
	graph   *taskgraph.Graph
	pool    *workerpool.Pool
	errLog  *errorLog

	mu      sync.Mutex
	summary Summary
}

// processSource fetches one source bundle and schedules its regions. Fetch
// and enumeration failures are fatal: no region of this or any later source
// can proceed without them.
func (r *runState) processSource(ctx context.Context, src config.Source) error {
	m := r.manager
	ctx = logging.WithSource(ctx, src.Name)
	logger := logging.WithContext(ctx, m.logger)

	churnDir := filepath.Join(m.cfg.ChurnDir(), sourceKey(src.BucketURI))
	downloadDir := filepath.Join(churnDir, "downloads")
	tokenPath := filepath.Join(downloadDir, "fetch.token")
	vectorPath := filepath.Join(downloadDir, filepath.Base(src.VectorURI))

	bundleTask, err := r.graph.Register("fetch bundle "+src.Name,
		func(c context.Context) error {
			return m.deps.Fetcher.FetchDirectory(c, src.BucketURI, downloadDir, tokenPath)
		},
		[]string{tokenPath}, nil)
	if err != nil {
		return err
	}
	vectorTask, err := r.graph.Register("fetch vector "+src.Name,
		func(c context.Context) error {
			return m.deps.Fetcher.FetchFile(c, src.VectorURI, vectorPath)
		},
		[]string{vectorPath}, nil)
	if err != nil {
		return err
	}
	if err := bundleTask.Join(); err != nil {
		return fmt.Errorf("fetch %s: %w", src.BucketURI, err)
	}
	if err := vectorTask.Join(); err != nil {
		return fmt.Errorf("fetch %s: %w", src.VectorURI, err)
	}

	rasters, err := filepath.Glob(filepath.Join(downloadDir, "*.tif"))
	if err != nil {
		return fmt.Errorf("list rasters of %s: %w", src.Name, err)
	}
	if len(rasters) == 0 {
		return gis.Wrap(gis.ErrConfiguration, "pipeline", "discover rasters",
			fmt.Sprintf("bundle %s contains no .tif rasters", src.BucketURI), nil)
	}

	regions, err := region.Enumerate(ctx, m.deps.Vectors, vectorPath, src.FieldName)
	if err != nil {
		return err
	}
	logger.Info("regions enumerated",
		logging.Int("regions", len(regions)),
		logging.Int("rasters", len(rasters)))

	for _, reg := range regions {
		if slices.Contains(m.cfg.Run.SkipLabels, reg.Label) {
			r.markSkipped(ctx, src, reg, logger)
		}
	}
	regions = region.FilterSkipped(regions, m.cfg.Run.SkipLabels)

	for _, reg := range regions {
		r.processRegion(ctx, src, reg, rasters, vectorPath, churnDir)
	}
	return nil
}

// processRegion builds and joins one region's task chain and, when the
// clipped stack is ready, submits the optimization job. All failures are
// recorded against the region and never abort the run.
func (r *runState) processRegion(ctx context.Context, src config.Source, reg region.Region, rasters []string, vectorPath, churnDir string) {
	m := r.manager
	ref := src.Name + "/" + reg.Label
	ctx = logging.WithRegion(ctx, reg.Label)
	logger := logging.WithContext(ctx, m.logger)

	workDir := filepath.Join(churnDir, "regions", reg.Label)
	outputDir := filepath.Join(churnDir, "output", reg.Label)
	resultsPath := optimize.ResultsPath(outputDir, reg.Label)

	if err := m.store.Begin(ctx, r.runID, src.Name, reg.Label, ledger.StatusPending); err != nil {
		r.fail(ctx, ref, src, reg, logger, err)
		return
	}

	// Extraction is cheap and always re-runs; a stale geometry file from
	// an interrupted run is not trusted as a completion marker.
	regionVector := filepath.Join(workDir, reg.Label+".gpkg")
	extractTask, err := r.graph.Register("extract "+ref,
		func(c context.Context) error {
			return m.extractor.Extract(c, vectorPath, src.FieldName, reg.Label, regionVector)
		},
		[]string{regionVector}, nil, taskgraph.AlwaysRun())
	if err != nil {
		r.fail(ctx, ref, src, reg, logger, err)
		return
	}

	clipped := make([]string, len(rasters))
	for i, raster := range rasters {
		clipped[i] = filepath.Join(workDir, "clipped", filepath.Base(raster))
	}
	_ = m.store.SetStatus(ctx, src.Name, reg.Label, ledger.StatusAligning)
	alignTask, err := r.graph.Register("align "+ref,
		func(c context.Context) error {
			return m.aligner.Align(c, rasters, clipped, regionVector)
		},
		clipped, []*taskgraph.Task{extractTask})
	if err != nil {
		r.fail(ctx, ref, src, reg, logger, err)
		return
	}

	stack := slices.Clone(clipped)
	var smoothTasks []*taskgraph.Task
	for i, path := range clipped {
		base := filepath.Base(path)
		if !slices.Contains(m.cfg.Smoothing.MaskRasters, base) {
			continue
		}
		maskPath := path
		smoothedPath := filepath.Join(workDir, "smoothed", base)
		task, err := r.graph.Register("smooth "+ref+" "+base,
			func(c context.Context) error {
				return m.smoother.SmoothMask(c, maskPath, m.cfg.Smoothing.Radius, smoothedPath)
			},
			[]string{smoothedPath}, []*taskgraph.Task{alignTask})
		if err != nil {
			r.fail(ctx, ref, src, reg, logger, err)
			return
		}
		stack[i] = smoothedPath
		smoothTasks = append(smoothTasks, task)
	}

	if err := alignTask.Join(); err != nil {
		r.fail(ctx, ref, src, reg, logger, err)
		return
	}
	for _, task := range smoothTasks {
		if err := task.Join(); err != nil {
			r.fail(ctx, ref, src, reg, logger, err)
			return
		}
	}

	if _, err := os.Stat(resultsPath); err == nil {
		logger.Info("results already present, skipping optimization",
			logging.String("results", resultsPath))
		_ = m.store.MarkCompleted(ctx, src.Name, reg.Label)
		r.add(func(s *Summary) { s.Completed++ })
		return
	}

	_ = m.store.SetStatus(ctx, src.Name, reg.Label, ledger.StatusOptimizing)
	bands := make([]gis.PathBand, len(stack))
	for i, path := range stack {
		bands[i] = gis.PathBand{Path: path, Band: 1}
	}
	optimizeDir := filepath.Join(workDir, "optimize")
	r.pool.Submit(ctx, workerpool.Job{
		Label: ref,
		Run: func(c context.Context) error {
			return m.deps.Optimizer.Optimize(c, gis.OptimizeRequest{
				Stack:      bands,
				WorkingDir: optimizeDir,
				OutputDir:  outputDir,
				Suffix:     reg.Label,
			})
		},
	})
}

// recordResult translates one pool outcome into ledger and summary updates.
func (r *runState) recordResult(ctx context.Context, result workerpool.Result) {
	m := r.manager
	source, label, _ := strings.Cut(result.Label, "/")
	if result.Err != nil {
		if err := r.errLog.Append(result.Label, result.Err); err != nil {
			m.logger.Error("error log append failed", logging.Error(err))
		}
		_ = m.store.MarkFailed(ctx, source, label, result.Err.Error())
		r.add(func(s *Summary) { s.Failed++ })
		return
	}
	_ = m.store.MarkCompleted(ctx, source, label)
	r.add(func(s *Summary) { s.Completed++ })
}

// fail records a pre-optimization region failure.
func (r *runState) fail(ctx context.Context, ref string, src config.Source, reg region.Region, logger *slog.Logger, cause error) {
	logger.Error("region failed", logging.Error(cause))
	if err := r.errLog.Append(ref, cause); err != nil {
		logger.Error("error log append failed", logging.Error(err))
	}
	_ = r.manager.store.MarkFailed(ctx, src.Name, reg.Label, cause.Error())
	r.add(func(s *Summary) { s.Failed++ })
}

func (r *runState) markSkipped(ctx context.Context, src config.Source, reg region.Region, logger *slog.Logger) {
	logger.Info("region skipped", logging.String(logging.FieldRegion, reg.Label))
	_ = r.manager.store.Begin(ctx, r.runID, src.Name, reg.Label, ledger.StatusSkipped)
	r.add(func(s *Summary) { s.Skipped++ })
}

func (r *runState) add(apply func(*Summary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	apply(&r.summary)
}

func (r *runState) snapshot() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// sourceKey derives a stable directory name for a source's scratch subtree
// from its bucket URI, so re-runs of the same source reuse downloads.
func sourceKey(bucketURI string) string {
	sum := sha256.Sum256([]byte(bucketURI))
	return hex.EncodeToString(sum[:8])
}
