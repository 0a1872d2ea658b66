package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the minimal object storage operations required by
// the submission and audit archive flows. It is intentionally small so
// MinIO/AWS-S3 implementations can be swapped without touching business
// logic.
type ObjectStorage interface {
	// PutObject stores an object.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// GetObject opens a reader for an object. Caller must close it.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	// StatObject returns size for an object, or an error if absent.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectStat describes a stored object.
type ObjectStat struct {
	SizeBytes int64
	ETag      string
}
