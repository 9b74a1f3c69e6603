package gis

import (
	"context"
	"math"
)

// PathBand references one band of a raster dataset on disk. Band indexes
// are 1-based, following the underlying raster library convention.
type PathBand struct {
	Path string
	Band int
}

// RasterInfo carries the raster metadata the pipeline needs.
type RasterInfo struct {
	Width     int
	Height    int
	PixelSize [2]float64 // x then y; y is typically negative
	NoData    float64
}

// Grid is a dense row-major block of pixel values.
type Grid struct {
	W, H int
	Data []float64
}

// NewGrid allocates a zeroed W by H grid.
func NewGrid(w, h int) Grid {
	return Grid{W: w, H: h, Data: make([]float64, w*h)}
}

// At returns the value at column x, row y.
func (g Grid) At(x, y int) float64 { return g.Data[y*g.W+x] }

// Set stores v at column x, row y.
func (g Grid) Set(x, y int, v float64) { g.Data[y*g.W+x] = v }

// Block is a grid positioned inside a larger raster.
type Block struct {
	X, Y int // pixel offset of the block origin within the raster
	Grid Grid
}

// Close reports whether two values are approximately equal. Nodata
// sentinels are floating values, so comparisons against them must use a
// tolerance rather than exact bit equality.
func Close(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= closeAbsTol+closeRelTol*math.Abs(b)
}

const (
	closeRelTol = 1e-5
	closeAbsTol = 1e-8
)

// RasterWriter receives the blocks of a raster being created. Close must
// be called to finalize the dataset; a dataset is not readable before
// Close returns.
type RasterWriter interface {
	WriteBlock(Block) error
	Close() error
}

// RasterStore provides read and create access to raster datasets.
type RasterStore interface {
	// Info returns metadata for the raster at path.
	Info(ctx context.Context, path string) (RasterInfo, error)
	// ReadBlocks iterates every block of a band in row-major order.
	ReadBlocks(ctx context.Context, pb PathBand, fn func(Block) error) error
	// ReadRegion reads an arbitrary window of a band.
	ReadRegion(ctx context.Context, pb PathBand, x, y, w, h int) (Grid, error)
	// Create opens a new single-band raster for writing.
	Create(ctx context.Context, path string, info RasterInfo) (RasterWriter, error)
}

// Geometry is an opaque feature geometry.
type Geometry interface {
	Area() float64
	Clone() Geometry
}

// FeatureInfo is the per-feature summary produced by enumeration.
type FeatureInfo struct {
	FID   int64
	Value string // value of the enumerated attribute field
	Area  float64
}

// VectorDataset exposes the read operations the pipeline performs against
// a multi-feature vector.
type VectorDataset interface {
	// SpatialRef returns the layer's spatial reference in WKT form.
	SpatialRef() string
	// Features enumerates every feature's id, field value, and geometry area.
	Features(ctx context.Context, field string) ([]FeatureInfo, error)
	// FindFirst applies the attribute filter field = value and returns the
	// first matching feature's geometry, or ErrNotFound when nothing matches.
	FindFirst(ctx context.Context, field, value string) (Geometry, error)
	Close() error
}

// VectorWriter creates features in a new single-layer vector dataset.
// The layer geometry type is fixed to multi-polygon.
type VectorWriter interface {
	WriteFeature(Geometry) error
	Close() error
}

// VectorStore provides access to vector datasets.
type VectorStore interface {
	OpenVector(ctx context.Context, path string) (VectorDataset, error)
	CreateVector(ctx context.Context, path, layer, spatialRef string) (VectorWriter, error)
}

// ConvolveOptions controls nodata handling during convolution.
type ConvolveOptions struct {
	WorkingDir   string
	TargetNoData float64
	// IgnoreNoData, when false, makes nodata pixels contribute zero to the
	// convolution instead of propagating nodata into the result.
	IgnoreNoData bool
	MaskNoData   bool
}

// Convolver is the external 2-D convolution primitive.
type Convolver interface {
	Convolve2D(ctx context.Context, signal, kernel PathBand, targetPath string, opts ConvolveOptions) error
}

// AlignRequest describes one multi-raster resample/clip operation.
type AlignRequest struct {
	Inputs     []string
	Outputs    []string
	Resampling []string // one mode per input
	PixelSize  [2]float64
	// BoundingMode selects the output extent; the pipeline always requests
	// the intersection of the input extents.
	BoundingMode string
	// MaskVectorPath clips output pixels to the vector geometry; pixels
	// outside become nodata.
	MaskVectorPath string
	// BaseVectorPaths declares vectors whose extents participate in the
	// bounding computation.
	BaseVectorPaths []string
}

// BoundingIntersection is the bounding mode used for every alignment.
const BoundingIntersection = "intersection"

// ResampleNearest is the resampling mode used for every input.
const ResampleNearest = "near"

// StackAligner is the external resample/clip primitive.
type StackAligner interface {
	AlignAndResize(ctx context.Context, req AlignRequest) error
}

// OptimizeRequest carries one region's inputs to the optimization routine.
type OptimizeRequest struct {
	Stack      []PathBand
	WorkingDir string
	OutputDir  string
	// Suffix labels the results table; the routine writes
	// results_<Suffix>.csv under OutputDir.
	Suffix string
}

// Optimizer is the external per-region optimization routine.
type Optimizer interface {
	Optimize(ctx context.Context, req OptimizeRequest) error
}

// Fetcher retrieves remote source bundles. FetchDirectory must write
// tokenPath only after the transfer completed, so the token's existence is
// distinguishable from a partial transfer.
type Fetcher interface {
	FetchDirectory(ctx context.Context, remoteURI, localDir, tokenPath string) error
	FetchFile(ctx context.Context, remoteURI, localPath string) error
}
