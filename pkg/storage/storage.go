// Package storage abstracts where media inputs come from and where outputs
// go: local paths, HTTP(S) downloads, or S3 objects.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Backend moves bytes for one URI scheme family.
type Backend interface {
	// Get opens the object at uri for reading.
	Get(ctx context.Context, uri string) (io.ReadCloser, error)

	// Put writes data to uri. Read-only backends return an error.
	Put(ctx context.Context, uri string, data io.Reader) error

	// Exists reports whether an object exists at uri.
	Exists(ctx context.Context, uri string) (bool, error)
}

// Resolver picks the backend for a URI by scheme. Plain paths and file://
// URIs resolve to local storage.
type Resolver struct {
	local *LocalBackend
	http  *HTTPBackend
	s3    *S3Backend
}

// NewResolver creates a resolver with local and HTTP backends ready. The S3
// backend is attached lazily on first s3:// URI because it loads AWS
// credentials.
func NewResolver() *Resolver {
	return &Resolver{
		local: NewLocalBackend(),
		http:  NewHTTPBackend(),
	}
}

// ForURI returns the backend responsible for uri.
func (r *Resolver) ForURI(ctx context.Context, uri string) (Backend, error) {
	switch Scheme(uri) {
	case "", "file":
		return r.local, nil
	case "http", "https":
		return r.http, nil
	case "s3":
		if r.s3 == nil {
			backend, err := NewS3Backend(ctx)
			if err != nil {
				return nil, err
			}
			r.s3 = backend
		}
		return r.s3, nil
	default:
		return nil, fmt.Errorf("unsupported URI scheme in %q", uri)
	}
}

// IsRemote reports whether uri names something outside the local filesystem.
func IsRemote(uri string) bool {
	switch Scheme(uri) {
	case "http", "https", "s3":
		return true
	default:
		return false
	}
}

// Scheme extracts the URI scheme, or "" for plain filesystem paths.
func Scheme(uri string) string {
	// A Windows drive letter or a path with no "://" is a plain path.
	if !strings.Contains(uri, "://") {
		return ""
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return parsed.Scheme
}

// LocalPath strips a file:// prefix; plain paths pass through unchanged.
func LocalPath(uri string) string {
	if Scheme(uri) != "file" {
		return uri
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return parsed.Path
}
