// Package testsupport provides test configuration builders and in-memory
// fakes for the external geospatial collaborators.
package testsupport

import (
	"path/filepath"
	"testing"

	"landopt/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Tools.OptimizerBinary = "land-optimize"
	cfgVal.Run.Workers = 2
	cfgVal.Run.GraphWorkers = 2

	builder := &configBuilder{t: t, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithSource appends a region source to the test config.
func WithSource(src config.Source) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sources = append(b.cfg.Sources, src)
	}
}

// WithSkipLabels sets the region skip list on the test config.
func WithSkipLabels(labels ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Run.SkipLabels = labels
	}
}

// WithSmoothing sets the smoothing parameters on the test config.
func WithSmoothing(radius int, coverage float64, maskRasters ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Smoothing.Radius = radius
		b.cfg.Smoothing.CoverageFraction = coverage
		b.cfg.Smoothing.MaskRasters = maskRasters
	}
}
