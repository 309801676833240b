// Package writer contains the Writer interface and its filesystem implementation
package writer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

//go:generate mockgen -destination=mocks/mock_writer.go -package=mocks -source=writer.go Writer

// Writer persists rendered configuration. Every write replaces the destination
// atomically: readers observe either the previous content or the new content.
type Writer interface {
	// Write replaces dest with content
	Write(ctx context.Context, dest string, content []byte, mode os.FileMode) error

	// Stage writes content next to dest without touching dest and returns the staged path
	Stage(ctx context.Context, dest string, content []byte, mode os.FileMode) (string, error)

	// Commit moves the staged content for dest into place
	Commit(ctx context.Context, dest string) error

	// Discard removes the staged content for dest, if any
	Discard(ctx context.Context, dest string) error
}

// StagedPath returns the path content for dest is staged at before a check command runs
func StagedPath(dest string) string {
	return filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".staged")
}

// DefaultMode replaces a zero file mode, which would leave the file unreadable
const DefaultMode os.FileMode = 0o644

type fsWriter struct {
	fs afero.Fs
}

// NewWriter creates a Writer backed by fsys. A nil fsys uses the OS filesystem.
func NewWriter(fsys afero.Fs) Writer {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &fsWriter{fs: fsys}
}

func (w *fsWriter) Write(_ context.Context, dest string, content []byte, mode os.FileMode) error {
	return w.writeAtomic(dest, content, mode)
}

func (w *fsWriter) Stage(_ context.Context, dest string, content []byte, mode os.FileMode) (string, error) {
	staged := StagedPath(dest)
	if err := w.writeAtomic(staged, content, mode); err != nil {
		return "", err
	}
	return staged, nil
}

func (w *fsWriter) Commit(_ context.Context, dest string) error {
	staged := StagedPath(dest)
	if err := w.fs.Rename(staged, dest); err != nil {
		return fmt.Errorf("failed to move staged file into %s: %w", dest, err)
	}
	return nil
}

func (w *fsWriter) Discard(_ context.Context, dest string) error {
	if err := w.fs.Remove(StagedPath(dest)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to discard staged file for %s: %w", dest, err)
	}
	return nil
}

// writeAtomic writes to a temporary file in the target directory and renames it over path
func (w *fsWriter) writeAtomic(path string, content []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := w.fs.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(w.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := tmp.Name()

	cleanup := func() {
		_ = w.fs.Remove(tempPath)
	}

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if mode == 0 {
		mode = DefaultMode
	}
	if err := w.fs.Chmod(tempPath, mode); err != nil {
		cleanup()
		return fmt.Errorf("failed to set mode on temporary file: %w", err)
	}

	// Atomic rename
	if err := w.fs.Rename(tempPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}

	return nil
}
