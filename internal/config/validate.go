package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateSmoothing(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		return errors.New("paths.workspace_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateSources() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if src.BucketURI == "" {
			return fmt.Errorf("sources[%d].bucket_uri must be set", i)
		}
		if src.FieldName == "" {
			return fmt.Errorf("sources[%d].field_name must be set", i)
		}
		if src.VectorURI == "" {
			return fmt.Errorf("sources[%d].vector_uri must be set", i)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("sources[%d].name %q duplicates another source", i, src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	return nil
}

func (c *Config) validateSmoothing() error {
	if c.Smoothing.Radius < 0 {
		return errors.New("smoothing.radius must be non-negative")
	}
	if c.Smoothing.CoverageFraction <= 0 || c.Smoothing.CoverageFraction > 1 {
		return errors.New("smoothing.coverage_fraction must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.Workers < 0 {
		return errors.New("run.workers must be non-negative")
	}
	if c.Run.GraphWorkers < 0 {
		return errors.New("run.graph_workers must be non-negative")
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.FetchBinary == "" {
		return errors.New("tools.fetch_binary must be set")
	}
	if c.Tools.AlignBinary == "" {
		return errors.New("tools.align_binary must be set")
	}
	if len(c.Sources) > 0 && c.Tools.OptimizerBinary == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/landopt/config.toml"
		}
		return fmt.Errorf("tools.optimizer_binary is required when sources are configured; edit %s (create with 'landopt config init')", defaultPath)
	}
	return nil
}
