package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkspaceDir string `toml:"workspace_dir"`
	LogDir       string `toml:"log_dir"`
}

// Source describes one region-source configuration: a remote bucket of
// raster layers plus the global vector whose features define the regions.
type Source struct {
	Name      string `toml:"name"`
	BucketURI string `toml:"bucket_uri"`
	FieldName string `toml:"field_name"`
	VectorURI string `toml:"vector_uri"`
}

// Smoothing contains the gap-fill smoothing parameters. MaskRasters lists
// the base names of clipped rasters that are binary masks to smooth before
// optimization; an empty list disables smoothing.
type Smoothing struct {
	Radius           int      `toml:"radius"`
	CoverageFraction float64  `toml:"coverage_fraction"`
	MaskRasters      []string `toml:"mask_rasters"`
}

// Run contains parallelism and scheduling settings.
type Run struct {
	// Workers bounds the optimization worker pool; zero means one worker
	// per available processing unit.
	Workers int `toml:"workers"`
	// GraphWorkers bounds the task graph scheduler; zero means CPU count.
	GraphWorkers int `toml:"graph_workers"`
	// SkipLabels lists region labels excluded from processing. Labels
	// absent from the data are ignored.
	SkipLabels []string `toml:"skip_labels"`
}

// Tools locates the external executables the pipeline shells out to.
type Tools struct {
	FetchBinary     string `toml:"fetch_binary"`
	AlignBinary     string `toml:"align_binary"`
	OptimizerBinary string `toml:"optimizer_binary"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for landopt.
//
// Configuration sections by subsystem:
//   - Paths: workspace and log directories
//   - Sources: region sources (bucket, field name, global vector)
//   - Smoothing: mask gap-fill radius and coverage fraction
//   - Run: worker counts and the region skip list
//   - Tools: external executable locators
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Sources   []Source  `toml:"sources"`
	Smoothing Smoothing `toml:"smoothing"`
	Run       Run       `toml:"run"`
	Tools     Tools     `toml:"tools"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/landopt/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("landopt.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	for i := range c.Sources {
		src := &c.Sources[i]
		src.BucketURI = strings.TrimRight(strings.TrimSpace(src.BucketURI), "/")
		src.VectorURI = strings.TrimSpace(src.VectorURI)
		src.FieldName = strings.TrimSpace(src.FieldName)
		if strings.TrimSpace(src.Name) == "" {
			src.Name = filepath.Base(src.BucketURI)
		}
	}
	c.Tools.FetchBinary = strings.TrimSpace(c.Tools.FetchBinary)
	c.Tools.AlignBinary = strings.TrimSpace(c.Tools.AlignBinary)
	c.Tools.OptimizerBinary = strings.TrimSpace(c.Tools.OptimizerBinary)
	return nil
}

// EnsureDirectories creates the directories a run needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceDir, c.ChurnDir(), c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ChurnDir returns the scratch subtree holding per-run intermediates.
func (c *Config) ChurnDir() string {
	return filepath.Join(c.Paths.WorkspaceDir, "churn")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the given location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
