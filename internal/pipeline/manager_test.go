package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"landopt/internal/config"
	"landopt/internal/gis"
	"landopt/internal/ledger"
	"landopt/internal/logging"
	"landopt/internal/pipeline"
	"landopt/internal/raster"
	"landopt/internal/testsupport"
)

const (
	bucketURI = "gs://bucket/realized_service"
	vectorURI = "gs://bucket/realized_service/countries.gpkg"
)

type env struct {
	cfg       *config.Config
	store     *ledger.Store
	fake      *testsupport.FakeGIS
	fetcher   *testsupport.FakeFetcher
	aligner   *testsupport.FakeAligner
	optimizer *testsupport.FakeOptimizer
	manager   *pipeline.Manager
}

func fixture(pixel float64) testsupport.RasterFixture {
	grid := gis.NewGrid(2, 2)
	for i := range grid.Data {
		grid.Data[i] = 1
	}
	return testsupport.RasterFixture{
		Info: gis.RasterInfo{Width: 2, Height: 2, PixelSize: [2]float64{pixel, -pixel}, NoData: -1},
		Grid: grid,
	}
}

func newEnv(t *testing.T, opts ...testsupport.ConfigOption) *env {
	t.Helper()

	base := []testsupport.ConfigOption{
		testsupport.WithSource(config.Source{
			Name:      "svc",
			BucketURI: bucketURI,
			FieldName: "iso3",
			VectorURI: vectorURI,
		}),
		testsupport.WithSkipLabels("ATA"),
	}
	cfg := testsupport.NewConfig(t, append(base, opts...)...)
	cfg.Run.Workers = 1 // deterministic submission order

	fake := testsupport.NewFakeGIS()
	e := &env{
		cfg:   cfg,
		store: testsupport.MustOpenLedger(t, cfg),
		fake:  fake,
		fetcher: &testsupport.FakeFetcher{
			Store: fake,
			Bundles: map[string]map[string]testsupport.RasterFixture{
				bucketURI: {
					"a.tif": fixture(300),
					"b.tif": fixture(10),
				},
			},
			Vectors: map[string]testsupport.MemVector{
				vectorURI: {
					SRS:   "GEOGCS[\"WGS 84\"]",
					Field: "iso3",
					Features: []testsupport.MemFeature{
						{FID: 1, Value: "BIG", Area: 50},
						{FID: 2, Value: "SML", Area: 10},
						{FID: 3, Value: "MID", Area: 30},
						{FID: 4, Value: "ATA", Area: 5},
					},
				},
			},
		},
		aligner:   &testsupport.FakeAligner{Store: fake},
		optimizer: &testsupport.FakeOptimizer{},
	}

	manager, err := pipeline.NewManager(cfg, e.store, logging.NewNop(), pipeline.Deps{
		Rasters:   fake,
		Vectors:   fake,
		Convolver: raster.NewConvolver(fake),
		Aligner:   e.aligner,
		Optimizer: e.optimizer,
		Fetcher:   e.fetcher,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	e.manager = manager
	return e
}

func (e *env) statuses(t *testing.T) map[string]ledger.Status {
	t.Helper()
	rows, err := e.store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	out := make(map[string]ledger.Status, len(rows))
	for _, row := range rows {
		out[row.Label] = row.Status
	}
	return out
}

func TestRunProcessesRegionsAreaAscending(t *testing.T) {
	e := newEnv(t)

	summary, err := e.manager.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Completed != 3 || summary.Failed != 0 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v, want 3 completed, 0 failed, 1 skipped", summary)
	}

	calls := e.optimizer.Calls()
	if len(calls) != 3 {
		t.Fatalf("got %d optimizer calls, want 3", len(calls))
	}
	wantOrder := []string{"SML", "MID", "BIG"}
	for i, call := range calls {
		if call.Suffix != wantOrder[i] {
			t.Fatalf("optimizer order = %v at %d, want %v", call.Suffix, i, wantOrder)
		}
		if len(call.Stack) != 2 {
			t.Fatalf("stack for %s has %d rasters, want 2", call.Suffix, len(call.Stack))
		}
		for _, pb := range call.Stack {
			if pb.Band != 1 {
				t.Fatalf("stack band = %d, want 1", pb.Band)
			}
		}
	}

	// Every alignment resamples to the finest input resolution.
	requests := e.aligner.Requests()
	if len(requests) != 3 {
		t.Fatalf("got %d align requests, want 3", len(requests))
	}
	for _, req := range requests {
		if req.PixelSize != [2]float64{10, -10} {
			t.Fatalf("align pixel size = %v, want [10 -10]", req.PixelSize)
		}
	}

	statuses := e.statuses(t)
	if statuses["ATA"] != ledger.StatusSkipped {
		t.Fatalf("ATA status = %s, want skipped", statuses["ATA"])
	}
	for _, label := range wantOrder {
		if statuses[label] != ledger.StatusCompleted {
			t.Fatalf("%s status = %s, want completed", label, statuses[label])
		}
	}
}

func TestSecondRunPerformsNoExpensiveWork(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.manager.Run(ctx); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	summary, err := e.manager.Run(ctx)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Completed != 3 || summary.Failed != 0 || summary.Skipped != 1 {
		t.Fatalf("second summary = %+v, want 3 completed, 0 failed, 1 skipped", summary)
	}

	if got := len(e.fetcher.DirFetches()); got != 1 {
		t.Fatalf("bundle fetched %d times, want 1", got)
	}
	if got := len(e.aligner.Requests()); got != 3 {
		t.Fatalf("aligner invoked %d times across both runs, want 3", got)
	}
	if got := len(e.optimizer.Calls()); got != 3 {
		t.Fatalf("optimizer invoked %d times across both runs, want 3", got)
	}
}

func TestOptimizerFailureIsIsolated(t *testing.T) {
	e := newEnv(t)
	e.optimizer.FailFor = map[string]error{"MID": errors.New("solver diverged")}

	summary, err := e.manager.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Completed != 2 || summary.Failed != 1 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v, want 2 completed, 1 failed, 1 skipped", summary)
	}

	statuses := e.statuses(t)
	if statuses["MID"] != ledger.StatusFailed {
		t.Fatalf("MID status = %s, want failed", statuses["MID"])
	}
	if statuses["SML"] != ledger.StatusCompleted || statuses["BIG"] != ledger.StatusCompleted {
		t.Fatalf("sibling regions should complete, got %v", statuses)
	}

	logData, err := os.ReadFile(filepath.Join(e.cfg.Paths.WorkspaceDir, "errors.log"))
	if err != nil {
		t.Fatalf("error log missing: %v", err)
	}
	if !strings.Contains(string(logData), "svc/MID") || !strings.Contains(string(logData), "solver diverged") {
		t.Fatalf("error log lacks failure detail: %q", logData)
	}
}

func TestAlignFailureIsIsolated(t *testing.T) {
	e := newEnv(t)
	e.aligner.FailWhen = func(req gis.AlignRequest) error {
		if strings.Contains(req.MaskVectorPath, "MID") {
			return errors.New("warp exploded")
		}
		return nil
	}

	summary, err := e.manager.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Completed != 2 || summary.Failed != 1 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v, want 2 completed, 1 failed, 1 skipped", summary)
	}

	// The failed region never reaches the optimizer.
	for _, call := range e.optimizer.Calls() {
		if call.Suffix == "MID" {
			t.Fatal("failed region was submitted for optimization")
		}
	}
	if statuses := e.statuses(t); statuses["MID"] != ledger.StatusFailed {
		t.Fatalf("MID status = %s, want failed", statuses["MID"])
	}
}

func TestFetchFailureAbortsRun(t *testing.T) {
	e := newEnv(t)
	e.fetcher.DirErr = errors.New("bucket unreachable")

	if _, err := e.manager.Run(context.Background()); err == nil {
		t.Fatal("expected run to fail when the bundle fetch fails")
	}
	if got := len(e.optimizer.Calls()); got != 0 {
		t.Fatalf("optimizer invoked %d times after fetch failure, want 0", got)
	}
}

func TestSmoothingRewritesMaskStack(t *testing.T) {
	e := newEnv(t, testsupport.WithSmoothing(1, 0.01, "b.tif"))

	summary, err := e.manager.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Completed != 3 {
		t.Fatalf("summary = %+v, want 3 completed", summary)
	}

	smoothedSeen := false
	for _, call := range e.optimizer.Calls() {
		for _, pb := range call.Stack {
			base := filepath.Base(pb.Path)
			parent := filepath.Base(filepath.Dir(pb.Path))
			if base == "b.tif" && parent != "smoothed" {
				t.Fatalf("mask raster %s was not smoothed before optimization", pb.Path)
			}
			if base == "b.tif" && parent == "smoothed" {
				smoothedSeen = true
			}
			if base == "a.tif" && parent != "clipped" {
				t.Fatalf("non-mask raster %s should stay clipped", pb.Path)
			}
		}
	}
	if !smoothedSeen {
		t.Fatal("no smoothed mask raster reached the optimizer")
	}
}
