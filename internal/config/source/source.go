// Package source fetches model files into the local models directory.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ekisa-team/ttsd/internal/config"
)

// ErrUnsupportedSource is returned for source types with no downloader.
var ErrUnsupportedSource = errors.New("unsupported model source")

// Downloader makes a model available on disk.
type Downloader interface {
	// Download returns the local path of the model and whether it was already present.
	Download(ctx context.Context, modelConfig *config.ModelConfig, targetDir string) (path string, cached bool, err error)
}

// GetDownloader returns the downloader for the model's source.
func GetDownloader(modelConfig *config.ModelConfig) (Downloader, error) {
	src, err := modelConfig.GetSource()
	if err != nil {
		return nil, err
	}

	switch src.Type() {
	case config.SourceTypeHuggingFace:
		return &HuggingFaceDownloader{}, nil
	case config.SourceTypeLocal:
		return &LocalDownloader{}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, src.Type())
}

// EnsureModelsDirectory creates dir if needed and returns it.
func EnsureModelsDirectory(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create models directory %s: %w", dir, err)
	}
	return dir, nil
}
