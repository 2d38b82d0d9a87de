// Package storage defines the Backend interface for case file content and
// the object key scheme shared by all backends.
package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"

	"github.com/google/uuid"
)

// Backend is the interface for content storage backends.
// Implementations handle raw object I/O (local filesystem, S3).
// The file tree, names and checklist links live in the metadata store; a
// rename or move never touches the backend.
type Backend interface {
	// GetObject retrieves the whole object and its size.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// PutObject uploads content to the given key, replacing any object there.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// DeleteObject removes an object. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// NewObjectKey returns a fresh, opaque key for content of a case. Keys never
// encode the file path, so moving a file only rewrites metadata.
func NewObjectKey(caseID string) string {
	return path.Join("cases", caseID, uuid.NewString())
}

// IsNotFound reports whether err means the object does not exist. Backends
// wrap fs.ErrNotExist for missing objects.
func IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
