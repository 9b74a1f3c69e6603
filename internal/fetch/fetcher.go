// Package fetch retrieves remote source bundles by shelling out to a
// configured copy tool (gsutil by default). Directory fetches write a
// completion token file after the transfer, so callers can distinguish a
// finished download from a partial one.
package fetch

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"landopt/internal/gis"
	"landopt/internal/logging"
)

// Client implements gis.Fetcher with an external copy executable. The
// binary is supplied by configuration rather than hardcoded, so
// deployments can point at their own tooling.
type Client struct {
	binary string
	logger *slog.Logger
}

// NewClient constructs a fetch client around the given executable.
func NewClient(binary string, logger *slog.Logger) *Client {
	return &Client{binary: binary, logger: logging.NewComponentLogger(logger, "fetch")}
}

// FetchDirectory copies every object under remoteURI into localDir and
// writes tokenPath once the transfer completed.
func (c *Client) FetchDirectory(ctx context.Context, remoteURI, localDir, tokenPath string) error {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return gis.Wrap(nil, "fetch", "create directory", localDir, err)
	}

	c.logger.Info("fetching bundle", logging.String("uri", remoteURI), logging.String("dir", localDir))
	// The copy tool expands the wildcard itself; no shell involved.
	if err := c.run(ctx, "cp", "-r", remoteURI+"/*", localDir); err != nil {
		return err
	}

	if err := os.WriteFile(tokenPath, []byte("done"), 0o644); err != nil {
		return gis.Wrap(nil, "fetch", "write token", tokenPath, err)
	}
	return nil
}

// FetchFile copies a single remote object to localPath.
func (c *Client) FetchFile(ctx context.Context, remoteURI, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return gis.Wrap(nil, "fetch", "create directory", filepath.Dir(localPath), err)
	}
	c.logger.Info("fetching file", logging.String("uri", remoteURI), logging.String("path", localPath))
	return c.run(ctx, "cp", remoteURI, localPath)
}

func (c *Client) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = err.Error()
		}
		return gis.Wrap(gis.ErrExternalTool, "fetch", c.binary+" "+args[0], detail, err)
	}
	return nil
}
