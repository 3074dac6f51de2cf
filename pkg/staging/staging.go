// Package staging fetches remote media inputs to a local scratch directory
// before an operation runs and pushes local outputs to their remote
// destinations afterwards.
package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fmpfmp/mediaforge/pkg/storage"
)

// Manager stages media files between local scratch space and storage backends.
type Manager struct {
	resolver *storage.Resolver
	baseDir  string
}

// NewManager creates a staging manager using the system temp directory for
// scratch space.
func NewManager() *Manager {
	return &Manager{
		resolver: storage.NewResolver(),
	}
}

// NewManagerIn creates a staging manager whose scratch directories live under
// baseDir.
func NewManagerIn(baseDir string) *Manager {
	m := NewManager()
	m.baseDir = baseDir
	return m
}

func (m *Manager) base() string {
	if m.baseDir != "" {
		return m.baseDir
	}
	return os.TempDir()
}

// Scratch creates a fresh scratch directory for one operation's inputs and
// intermediate outputs.
func (m *Manager) Scratch() (string, error) {
	base := m.base()
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	dir, err := os.MkdirTemp(base, "mediaforge-*")
	if err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	return dir, nil
}

// FetchInput makes uri available as a local path. Local URIs pass through
// untouched; remote ones are downloaded into scratchDir.
func (m *Manager) FetchInput(ctx context.Context, uri, scratchDir string) (string, error) {
	if !storage.IsRemote(uri) {
		return storage.LocalPath(uri), nil
	}

	backend, err := m.resolver.ForURI(ctx, uri)
	if err != nil {
		return "", err
	}

	name := filepath.Base(uri)
	if name == "" || name == "." || name == "/" {
		name = "input"
	}
	localPath := filepath.Join(scratchDir, name)

	reader, err := backend.Get(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer reader.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return "", fmt.Errorf("write staged file: %w", err)
	}

	return localPath, nil
}

// OutputPath returns the local path an operation should write to for destURI:
// the destination itself when local, a scratch path otherwise.
func (m *Manager) OutputPath(destURI, scratchDir string) string {
	if !storage.IsRemote(destURI) {
		return storage.LocalPath(destURI)
	}

	name := filepath.Base(destURI)
	if name == "" || name == "." || name == "/" {
		name = "output"
	}
	return filepath.Join(scratchDir, name)
}

// PublishOutput uploads localPath to destURI when the destination is remote.
// A local destination that differs from localPath is copied into place.
func (m *Manager) PublishOutput(ctx context.Context, localPath, destURI string) error {
	if !storage.IsRemote(destURI) {
		destPath := storage.LocalPath(destURI)
		if destPath == localPath {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("create destination directory: %w", err)
		}
		return copyFile(localPath, destPath)
	}

	backend, err := m.resolver.ForURI(ctx, destURI)
	if err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer file.Close()

	if err := backend.Put(ctx, destURI, file); err != nil {
		return fmt.Errorf("publish to %s: %w", destURI, err)
	}

	return nil
}

// Cleanup removes a scratch directory. It refuses paths outside the manager's
// scratch base.
func (m *Manager) Cleanup(scratchDir string) error {
	if scratchDir == "" || scratchDir == "/" || scratchDir == "." {
		return fmt.Errorf("invalid scratch directory: %s", scratchDir)
	}
	base := filepath.Clean(m.base())
	if !strings.HasPrefix(filepath.Clean(scratchDir), base+string(os.PathSeparator)) {
		return fmt.Errorf("refusing to remove directory outside scratch base: %s", scratchDir)
	}
	return os.RemoveAll(scratchDir)
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	return err
}
