package region

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"landopt/internal/gis"
	"landopt/internal/logging"
)

// Extractor isolates one region's geometry from a global multi-feature
// vector into a standalone single-feature vector.
type Extractor struct {
	store  gis.VectorStore
	logger *slog.Logger
}

// NewExtractor constructs an extractor backed by the given vector store.
func NewExtractor(store gis.VectorStore, logger *slog.Logger) *Extractor {
	return &Extractor{store: store, logger: logging.NewComponentLogger(logger, "extract")}
}

// Extract filters the global vector on field = value, clones the first
// matching feature's geometry, and writes it as a new single-layer,
// single-feature multi-polygon vector at targetPath with the source's
// spatial reference. The source vector is never mutated. A value with no
// matching feature yields gis.ErrNotFound; enumeration and extraction read
// the same vector, so that indicates a data mismatch.
func (e *Extractor) Extract(ctx context.Context, globalVectorPath, field, value, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return gis.Wrap(nil, "extract", "create directory", targetPath, err)
	}

	dataset, err := e.store.OpenVector(ctx, globalVectorPath)
	if err != nil {
		return gis.Wrap(nil, "extract", "open vector", globalVectorPath, err)
	}
	defer dataset.Close()

	geometry, err := dataset.FindFirst(ctx, field, value)
	if err != nil {
		return gis.Wrap(gis.ErrNotFound, "extract", "filter", field+"="+value, err)
	}

	layer := strings.TrimSuffix(filepath.Base(value), filepath.Ext(value))
	writer, err := e.store.CreateVector(ctx, targetPath, layer, dataset.SpatialRef())
	if err != nil {
		return gis.Wrap(nil, "extract", "create vector", targetPath, err)
	}
	if err := writer.WriteFeature(geometry.Clone()); err != nil {
		_ = writer.Close()
		return gis.Wrap(nil, "extract", "write feature", value, err)
	}
	if err := writer.Close(); err != nil {
		return gis.Wrap(nil, "extract", "close vector", targetPath, err)
	}

	e.logger.Debug("region geometry extracted",
		logging.String(logging.FieldRegion, value),
		logging.String("target", targetPath))
	return nil
}
