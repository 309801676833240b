package sources

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/stacklok/thv-confd/internal/config"
)

// fileSource decodes a local document on every fetch
type fileSource struct {
	fs     afero.Fs
	path   string
	format string
}

// NewFileSource creates a file source. A nil fs reads the OS filesystem.
func NewFileSource(cfg *config.FileConfig, fs afero.Fs) (Source, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	format := cfg.Format
	if format == "" {
		format = FormatFromPath(cfg.Path)
	}
	return &fileSource{fs: fs, path: cfg.Path, format: format}, nil
}

func (*fileSource) Type() string {
	return config.SourceTypeFile
}

func (s *fileSource) Fetch(context.Context) (map[string]any, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fetchError(config.SourceTypeFile, fmt.Errorf("file not found: %s", s.path))
		}
		return nil, fetchError(config.SourceTypeFile, fmt.Errorf("failed to read file %s: %w", s.path, err))
	}

	doc, err := Decode(data, s.format)
	if err != nil {
		return nil, fetchError(config.SourceTypeFile, fmt.Errorf("%s: %w", s.path, err))
	}
	return doc, nil
}
