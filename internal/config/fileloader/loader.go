package fileloader

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/castverify/internal/config"
)

// FileLoader loads the task catalog seed from a YAML file on disk.
type FileLoader struct {
	// path is the filesystem path to the seed file.
	path string
}

var _ config.CatalogLoader = (*FileLoader)(nil)

// NewFileLoader creates a FileLoader for path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads and parses the seed file.
func (l *FileLoader) Load(ctx context.Context) (*config.CatalogSeed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var seed config.CatalogSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	return &seed, nil
}
