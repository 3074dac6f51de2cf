package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Backend moves media objects in and out of S3 buckets.
type S3Backend struct {
	client *s3.Client
}

// NewS3Backend creates an S3 backend using the default AWS credential chain
// (env vars, config files, IAM roles).
func NewS3Backend(ctx context.Context) (*S3Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &S3Backend{
		client: s3.NewFromConfig(cfg),
	}, nil
}

// NewS3BackendWithClient creates an S3 backend around an existing client.
// Useful for tests and custom endpoints.
func NewS3BackendWithClient(client *s3.Client) *S3Backend {
	return &S3Backend{client: client}
}

// splitS3URI parses s3://bucket/key/path into bucket and key
func splitS3URI(uri string) (bucket, key string, err error) {
	trimmed, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3:// URI: %q", uri)
	}

	bucket, key, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: missing bucket", uri)
	}
	if key == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: missing object key", uri)
	}

	return bucket, key, nil
}

// Get downloads the object at uri
func (b *S3Backend) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := splitS3URI(uri)
	if err != nil {
		return nil, err
	}

	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get S3 object: %w", err)
	}

	return result.Body, nil
}

// Put uploads data to uri
func (b *S3Backend) Put(ctx context.Context, uri string, data io.Reader) error {
	bucket, key, err := splitS3URI(uri)
	if err != nil {
		return err
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("put S3 object: %w", err)
	}

	return nil
}

// Exists checks whether the object at uri exists
func (b *S3Backend) Exists(ctx context.Context, uri string) (bool, error) {
	bucket, key, err := splitS3URI(uri)
	if err != nil {
		return false, err
	}

	_, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("check S3 object existence: %w", err)
	}

	return true, nil
}

// isS3NotFound recognizes the several shapes a 404 takes in the SDK.
func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "NotFound" {
			return true
		}
		if httpResp, ok := apiErr.(interface{ HTTPStatusCode() int }); ok {
			return httpResp.HTTPStatusCode() == http.StatusNotFound
		}
	}

	return false
}
