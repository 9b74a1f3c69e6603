package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"landopt/internal/gis"
)

// FakeAligner records align requests and materializes each output as a copy
// of its input at the requested pixel size.
type FakeAligner struct {
	Store *FakeGIS
	Err   error
	// FailWhen, if set, can reject individual requests.
	FailWhen func(gis.AlignRequest) error

	mu       sync.Mutex
	requests []gis.AlignRequest
}

// AlignAndResize implements gis.StackAligner.
func (a *FakeAligner) AlignAndResize(ctx context.Context, req gis.AlignRequest) error {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	if a.Err != nil {
		return a.Err
	}
	if a.FailWhen != nil {
		if err := a.FailWhen(req); err != nil {
			return err
		}
	}
	if len(req.Inputs) != len(req.Outputs) {
		return fmt.Errorf("fake aligner: %d inputs but %d outputs", len(req.Inputs), len(req.Outputs))
	}
	for i, input := range req.Inputs {
		src := a.Store.Raster(input)
		if src == nil {
			return fmt.Errorf("fake aligner: no raster at %s", input)
		}
		info := src.Info
		info.PixelSize = req.PixelSize
		if err := a.Store.AddRaster(req.Outputs[i], info, src.Grid); err != nil {
			return err
		}
	}
	return nil
}

// Requests returns a copy of the recorded align requests.
func (a *FakeAligner) Requests() []gis.AlignRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]gis.AlignRequest(nil), a.requests...)
}

// FakeOptimizer records optimize requests and writes the results table on
// success. Failures are injected per region suffix.
type FakeOptimizer struct {
	FailFor map[string]error

	mu    sync.Mutex
	calls []gis.OptimizeRequest
}

// Optimize implements gis.Optimizer.
func (o *FakeOptimizer) Optimize(ctx context.Context, req gis.OptimizeRequest) error {
	o.mu.Lock()
	o.calls = append(o.calls, req)
	o.mu.Unlock()

	if err := o.FailFor[req.Suffix]; err != nil {
		return err
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return err
	}
	results := filepath.Join(req.OutputDir, "results_"+req.Suffix+".csv")
	return os.WriteFile(results, []byte("raster,optimal_area\n"), 0o644)
}

// Calls returns a copy of the recorded optimize requests.
func (o *FakeOptimizer) Calls() []gis.OptimizeRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]gis.OptimizeRequest(nil), o.calls...)
}

// RasterFixture is one remote raster a FakeFetcher can deliver.
type RasterFixture struct {
	Info gis.RasterInfo
	Grid gis.Grid
}

// FakeFetcher simulates remote bundle retrieval by registering fixtures in
// the backing FakeGIS. Directory fetches write the completion token only
// after every fixture landed.
type FakeFetcher struct {
	Store *FakeGIS
	// Bundles maps a bucket URI to its raster files by base name.
	Bundles map[string]map[string]RasterFixture
	// Vectors maps a vector URI to its dataset fixture.
	Vectors map[string]MemVector
	DirErr  error
	FileErr error

	mu         sync.Mutex
	dirFetches []string
}

// FetchDirectory implements gis.Fetcher.
func (f *FakeFetcher) FetchDirectory(ctx context.Context, remoteURI, localDir, tokenPath string) error {
	f.mu.Lock()
	f.dirFetches = append(f.dirFetches, remoteURI)
	f.mu.Unlock()

	if f.DirErr != nil {
		return f.DirErr
	}
	bundle, ok := f.Bundles[remoteURI]
	if !ok {
		return fmt.Errorf("fake fetcher: no bundle at %s", remoteURI)
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return err
	}
	for name, fixture := range bundle {
		if err := f.Store.AddRaster(filepath.Join(localDir, name), fixture.Info, fixture.Grid); err != nil {
			return err
		}
	}
	return os.WriteFile(tokenPath, []byte("done"), 0o644)
}

// FetchFile implements gis.Fetcher.
func (f *FakeFetcher) FetchFile(ctx context.Context, remoteURI, localPath string) error {
	if f.FileErr != nil {
		return f.FileErr
	}
	vec, ok := f.Vectors[remoteURI]
	if !ok {
		return fmt.Errorf("fake fetcher: no vector at %s", remoteURI)
	}
	return f.Store.AddVector(localPath, vec)
}

// DirFetches returns the bucket URIs fetched so far.
func (f *FakeFetcher) DirFetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dirFetches...)
}
