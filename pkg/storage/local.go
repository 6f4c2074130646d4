package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Local implements FileStore on top of the local filesystem.
// All paths are resolved relative to the configured root directory.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir.
// The directory is created (with parents) if it does not already exist.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute root directory.
func (l *Local) Root() string {
	return l.root
}

// Path turns a storage path into an absolute filesystem path.
func (l *Local) Path(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(l.Path(path))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Write stages data in a temporary file next to the target and renames it
// into place on Close.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full := l.Path(path)
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(full)+".*.tmp")
	if err != nil {
		return nil, err
	}
	return &atomicFile{f: f, target: full}, nil
}

func (l *Local) Delete(_ context.Context, path string) error {
	err := os.Remove(l.Path(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.Path(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) List(_ context.Context, prefix string) ([]string, error) {
	base := l.Path(prefix)
	var out []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == base {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}

// atomicFile renames a finished temp file over its target.
type atomicFile struct {
	f      *os.File
	target string
	closed bool
}

func (a *atomicFile) Write(p []byte) (int, error) {
	return a.f.Write(p)
}

func (a *atomicFile) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	tmp := a.f.Name()
	if err := a.f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, a.target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

var _ FileStore = (*Local)(nil)
