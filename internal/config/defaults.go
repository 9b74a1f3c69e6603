package config

const (
	defaultWorkspaceDir     = "~/.local/share/landopt/workspace"
	defaultLogDir           = "~/.local/share/landopt/logs"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultFetchBinary      = "gsutil"
	defaultAlignBinary      = "gdalwarp"
	defaultSmoothRadius     = 5
	defaultCoverageFraction = 0.01
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			LogDir:       defaultLogDir,
		},
		Smoothing: Smoothing{
			Radius:           defaultSmoothRadius,
			CoverageFraction: defaultCoverageFraction,
		},
		Tools: Tools{
			FetchBinary: defaultFetchBinary,
			AlignBinary: defaultAlignBinary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
