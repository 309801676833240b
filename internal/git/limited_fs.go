package git

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	billy "github.com/go-git/go-billy/v5"
)

const (
	// DefaultMaxFiles bounds the number of files a clone may create
	DefaultMaxFiles = 10 * 1000

	// DefaultMaxTotalSize bounds the bytes a clone may write (100MB)
	DefaultMaxTotalSize = 100 * 1024 * 1024
)

// ErrLimitExceeded is returned when a clone grows beyond the LimitedFs bounds
var ErrLimitExceeded = errors.New("repository exceeds clone size limits")

// LimitedFs wraps a billy filesystem and caps the number of created files
// and the total bytes written through it
type LimitedFs struct {
	billy.Filesystem

	MaxFiles      int64
	TotalFileSize int64

	mu      sync.Mutex
	files   int64
	written int64
}

// newLimitedFs wraps fs with the default limits
func newLimitedFs(fs billy.Filesystem) *LimitedFs {
	return &LimitedFs{
		Filesystem:    fs,
		MaxFiles:      DefaultMaxFiles,
		TotalFileSize: DefaultMaxTotalSize,
	}
}

// Create creates a file, counting it against MaxFiles
func (l *LimitedFs) Create(filename string) (billy.File, error) {
	return l.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

// OpenFile opens a file. Opening with O_CREATE counts against MaxFiles.
func (l *LimitedFs) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&os.O_CREATE != 0 {
		if err := l.addFile(); err != nil {
			return nil, err
		}
	}
	f, err := l.Filesystem.OpenFile(filename, flag, perm)
	if err != nil {
		return nil, err
	}
	return &limitedFile{File: f, fs: l}, nil
}

// TempFile creates a temporary file, counting it against MaxFiles
func (l *LimitedFs) TempFile(dir, prefix string) (billy.File, error) {
	if err := l.addFile(); err != nil {
		return nil, err
	}
	f, err := l.Filesystem.TempFile(dir, prefix)
	if err != nil {
		return nil, err
	}
	return &limitedFile{File: f, fs: l}, nil
}

func (l *LimitedFs) addFile() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.MaxFiles > 0 && l.files >= l.MaxFiles {
		return fmt.Errorf("%w: more than %d files", ErrLimitExceeded, l.MaxFiles)
	}
	l.files++
	return nil
}

func (l *LimitedFs) addBytes(n int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.TotalFileSize > 0 && l.written+n > l.TotalFileSize {
		return fmt.Errorf("%w: more than %d bytes", ErrLimitExceeded, l.TotalFileSize)
	}
	l.written += n
	return nil
}

type limitedFile struct {
	billy.File
	fs *LimitedFs
}

func (f *limitedFile) Write(p []byte) (int, error) {
	if err := f.fs.addBytes(int64(len(p))); err != nil {
		return 0, err
	}
	return f.File.Write(p)
}

func (f *limitedFile) WriteAt(p []byte, off int64) (int, error) {
	w, ok := f.File.(io.WriterAt)
	if !ok {
		return 0, fmt.Errorf("file %s does not support WriteAt", f.Name())
	}
	if err := f.fs.addBytes(int64(len(p))); err != nil {
		return 0, err
	}
	return w.WriteAt(p, off)
}
