package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalBackend serves plain filesystem paths and file:// URIs.
type LocalBackend struct{}

// NewLocalBackend creates a local filesystem backend
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

// Get opens a local file for reading
func (b *LocalBackend) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	file, err := os.Open(LocalPath(uri))
	if err != nil {
		return nil, fmt.Errorf("open local file: %w", err)
	}
	return file, nil
}

// Put writes data to a local file, creating parent directories as needed
func (b *LocalBackend) Put(ctx context.Context, uri string, data io.Reader) error {
	path := LocalPath(uri)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return fmt.Errorf("write local file: %w", err)
	}

	return nil
}

// Exists checks whether a local file exists
func (b *LocalBackend) Exists(ctx context.Context, uri string) (bool, error) {
	_, err := os.Stat(LocalPath(uri))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
