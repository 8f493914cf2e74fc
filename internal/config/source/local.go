package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ekisa-team/ttsd/internal/config"
	"github.com/ekisa-team/ttsd/internal/xfs"
)

// LocalDownloader resolves models that already exist on disk.
// Relative paths are taken relative to the models directory.
type LocalDownloader struct{}

// Download checks that the configured path exists.
func (d *LocalDownloader) Download(_ context.Context, modelConfig *config.ModelConfig, targetDir string) (string, bool, error) {
	source, err := modelConfig.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get model source: %w", err)
	}

	local, ok := source.(config.LocalSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", source)
	}

	path := xfs.ExpandTilde(local.Path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(targetDir, path)
	}

	if _, err := os.Stat(path); err != nil {
		return "", false, fmt.Errorf("local model not found: %w", err)
	}

	return path, true, nil
}
