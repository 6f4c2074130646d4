// Package storage defines the FileStore interface used to persist meeting
// sessions: state and transcript documents, enrollment audio and the final
// recording.
//
// Local stores files under a root directory and replaces them atomically.
// S3Store keeps them in an S3-compatible bucket under an optional prefix.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing. The new content replaces the
	// old one only when Close returns nil; readers never observe a partial
	// file. Parent directories are created automatically.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths of all files under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ReadFile reads the whole named file.
func ReadFile(ctx context.Context, fs FileStore, path string) ([]byte, error) {
	r, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return b, nil
}

// WriteFile replaces the named file with data.
func WriteFile(ctx context.Context, fs FileStore, path string, data []byte) error {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return w.Close()
}
