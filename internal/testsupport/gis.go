package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"landopt/internal/gis"
)

// FakeGIS is an in-memory raster and vector store. Every dataset it writes
// is also touched as an empty file on disk, so file-existence memoization
// and globbing behave exactly as they do against real datasets.
type FakeGIS struct {
	mu      sync.Mutex
	rasters map[string]*MemRaster
	vectors map[string]*MemVector

	// BlockRows bounds the rows per block during ReadBlocks; zero reads
	// each raster as one block.
	BlockRows int
}

// MemRaster is one in-memory raster dataset.
type MemRaster struct {
	Info gis.RasterInfo
	Grid gis.Grid
}

// MemFeature is one in-memory vector feature.
type MemFeature struct {
	FID   int64
	Value string
	Area  float64
}

// MemVector is one in-memory vector dataset.
type MemVector struct {
	SRS      string
	Field    string
	Features []MemFeature
}

// NewFakeGIS constructs an empty fake store.
func NewFakeGIS() *FakeGIS {
	return &FakeGIS{
		rasters: make(map[string]*MemRaster),
		vectors: make(map[string]*MemVector),
	}
}

// AddRaster registers a raster at path and touches the file on disk.
func (f *FakeGIS) AddRaster(path string, info gis.RasterInfo, grid gis.Grid) error {
	if err := touch(path); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rasters[path] = &MemRaster{Info: info, Grid: grid}
	return nil
}

// AddVector registers a vector at path and touches the file on disk.
func (f *FakeGIS) AddVector(path string, vec MemVector) error {
	if err := touch(path); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := vec
	copied.Features = append([]MemFeature(nil), vec.Features...)
	f.vectors[path] = &copied
	return nil
}

// Raster returns the stored raster at path, or nil when absent.
func (f *FakeGIS) Raster(path string) *MemRaster {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rasters[path]
}

// Vector returns the stored vector at path, or nil when absent.
func (f *FakeGIS) Vector(path string) *MemVector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vectors[path]
}

func (f *FakeGIS) raster(path string) (*MemRaster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rasters[path]
	if !ok {
		return nil, fmt.Errorf("fake gis: no raster at %s", path)
	}
	return r, nil
}

// Info implements gis.RasterStore.
func (f *FakeGIS) Info(_ context.Context, path string) (gis.RasterInfo, error) {
	r, err := f.raster(path)
	if err != nil {
		return gis.RasterInfo{}, err
	}
	return r.Info, nil
}

// ReadBlocks implements gis.RasterStore.
func (f *FakeGIS) ReadBlocks(ctx context.Context, pb gis.PathBand, fn func(gis.Block) error) error {
	r, err := f.raster(pb.Path)
	if err != nil {
		return err
	}
	rows := f.BlockRows
	if rows <= 0 {
		rows = r.Grid.H
	}
	for y := 0; y < r.Grid.H; y += rows {
		h := rows
		if y+h > r.Grid.H {
			h = r.Grid.H - y
		}
		block, err := f.ReadRegion(ctx, pb, 0, y, r.Grid.W, h)
		if err != nil {
			return err
		}
		if err := fn(gis.Block{X: 0, Y: y, Grid: block}); err != nil {
			return err
		}
	}
	return nil
}

// ReadRegion implements gis.RasterStore.
func (f *FakeGIS) ReadRegion(_ context.Context, pb gis.PathBand, x, y, w, h int) (gis.Grid, error) {
	r, err := f.raster(pb.Path)
	if err != nil {
		return gis.Grid{}, err
	}
	if x < 0 || y < 0 || x+w > r.Grid.W || y+h > r.Grid.H {
		return gis.Grid{}, fmt.Errorf("fake gis: window %d,%d %dx%d outside %s", x, y, w, h, pb.Path)
	}
	out := gis.NewGrid(w, h)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			out.Set(col, row, r.Grid.At(x+col, y+row))
		}
	}
	return out, nil
}

// Create implements gis.RasterStore.
func (f *FakeGIS) Create(_ context.Context, path string, info gis.RasterInfo) (gis.RasterWriter, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("fake gis: create %s with size %dx%d", path, info.Width, info.Height)
	}
	return &memRasterWriter{store: f, path: path, info: info, grid: gis.NewGrid(info.Width, info.Height)}, nil
}

type memRasterWriter struct {
	store *FakeGIS
	path  string
	info  gis.RasterInfo
	grid  gis.Grid
}

func (w *memRasterWriter) WriteBlock(block gis.Block) error {
	if block.X < 0 || block.Y < 0 || block.X+block.Grid.W > w.grid.W || block.Y+block.Grid.H > w.grid.H {
		return fmt.Errorf("fake gis: block %d,%d %dx%d outside %s", block.X, block.Y, block.Grid.W, block.Grid.H, w.path)
	}
	for row := 0; row < block.Grid.H; row++ {
		for col := 0; col < block.Grid.W; col++ {
			w.grid.Set(block.X+col, block.Y+row, block.Grid.At(col, row))
		}
	}
	return nil
}

func (w *memRasterWriter) Close() error {
	return w.store.AddRaster(w.path, w.info, w.grid)
}

// OpenVector implements gis.VectorStore.
func (f *FakeGIS) OpenVector(_ context.Context, path string) (gis.VectorDataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vectors[path]
	if !ok {
		return nil, fmt.Errorf("fake gis: no vector at %s", path)
	}
	return &memVectorDataset{path: path, vec: v}, nil
}

// CreateVector implements gis.VectorStore.
func (f *FakeGIS) CreateVector(_ context.Context, path, layer, spatialRef string) (gis.VectorWriter, error) {
	return &memVectorWriter{store: f, path: path, layer: layer, srs: spatialRef}, nil
}

type memVectorDataset struct {
	path string
	vec  *MemVector
}

func (d *memVectorDataset) SpatialRef() string { return d.vec.SRS }

func (d *memVectorDataset) Features(_ context.Context, field string) ([]gis.FeatureInfo, error) {
	if d.vec.Field != "" && field != d.vec.Field {
		return nil, fmt.Errorf("fake gis: vector %s has no field %q", d.path, field)
	}
	infos := make([]gis.FeatureInfo, 0, len(d.vec.Features))
	for _, feat := range d.vec.Features {
		infos = append(infos, gis.FeatureInfo{FID: feat.FID, Value: feat.Value, Area: feat.Area})
	}
	return infos, nil
}

func (d *memVectorDataset) FindFirst(_ context.Context, field, value string) (gis.Geometry, error) {
	if d.vec.Field != "" && field != d.vec.Field {
		return nil, fmt.Errorf("fake gis: vector %s has no field %q", d.path, field)
	}
	for _, feat := range d.vec.Features {
		if feat.Value == value {
			return MemGeometry{GeomArea: feat.Area, Label: feat.Value}, nil
		}
	}
	return nil, gis.ErrNotFound
}

func (d *memVectorDataset) Close() error { return nil }

type memVectorWriter struct {
	store    *FakeGIS
	path     string
	layer    string
	srs      string
	features []MemFeature
}

func (w *memVectorWriter) WriteFeature(geom gis.Geometry) error {
	label := w.layer
	if mg, ok := geom.(MemGeometry); ok && mg.Label != "" {
		label = mg.Label
	}
	w.features = append(w.features, MemFeature{
		FID:   int64(len(w.features)),
		Value: label,
		Area:  geom.Area(),
	})
	return nil
}

func (w *memVectorWriter) Close() error {
	return w.store.AddVector(w.path, MemVector{SRS: w.srs, Features: w.features})
}

// MemGeometry is a trivial gis.Geometry carrying only an area.
type MemGeometry struct {
	GeomArea float64
	Label    string
}

func (g MemGeometry) Area() float64       { return g.GeomArea }
func (g MemGeometry) Clone() gis.Geometry { return g }

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}
