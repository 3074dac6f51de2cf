package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPBackend downloads media over HTTP/HTTPS. It is read-only.
type HTTPBackend struct {
	client *http.Client
}

// NewHTTPBackend creates an HTTP download backend
func NewHTTPBackend() *HTTPBackend {
	return &HTTPBackend{
		client: &http.Client{},
	}
}

// Get downloads the object at uri
func (b *HTTPBackend) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// Put is not supported; HTTP sources are read-only
func (b *HTTPBackend) Put(ctx context.Context, uri string, data io.Reader) error {
	return fmt.Errorf("HTTP backend is read-only")
}

// Exists sends a HEAD request for uri
func (b *HTTPBackend) Exists(ctx context.Context, uri string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("check existence: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
