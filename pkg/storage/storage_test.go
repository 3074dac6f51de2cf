package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheme(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"/var/media/input.mp4", ""},
		{"relative/clip.mov", ""},
		{"file:///var/media/input.mp4", "file"},
		{"https://cdn.example.com/clip.mp4", "https"},
		{"http://cdn.example.com/clip.mp4", "http"},
		{"s3://bucket/key.mp4", "s3"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, Scheme(tc.uri), "uri %q", tc.uri)
	}
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, "/var/media/input.mp4", LocalPath("file:///var/media/input.mp4"))
	assert.Equal(t, "/var/media/input.mp4", LocalPath("/var/media/input.mp4"))
}

func TestIsRemote(t *testing.T) {
	assert.False(t, IsRemote("/var/media/input.mp4"))
	assert.False(t, IsRemote("file:///var/media/input.mp4"))
	assert.True(t, IsRemote("https://cdn.example.com/clip.mp4"))
	assert.True(t, IsRemote("s3://bucket/key.mp4"))
}

func TestResolver_ForURI(t *testing.T) {
	r := NewResolver()
	ctx := context.Background()

	backend, err := r.ForURI(ctx, "/tmp/a.mp4")
	require.NoError(t, err)
	assert.IsType(t, &LocalBackend{}, backend)

	backend, err = r.ForURI(ctx, "https://cdn.example.com/a.mp4")
	require.NoError(t, err)
	assert.IsType(t, &HTTPBackend{}, backend)

	_, err = r.ForURI(ctx, "gopher://old.example.com/a.mp4")
	assert.Error(t, err)
}

func TestSplitS3URI(t *testing.T) {
	bucket, key, err := splitS3URI("s3://media-inputs/jobs/42/input.mp4")
	require.NoError(t, err)
	assert.Equal(t, "media-inputs", bucket)
	assert.Equal(t, "jobs/42/input.mp4", key)

	_, _, err = splitS3URI("s3://")
	assert.Error(t, err)

	_, _, err = splitS3URI("s3://bucket-only")
	assert.Error(t, err)

	_, _, err = splitS3URI("https://not-s3.example.com/x")
	assert.Error(t, err)
}
