package media

import (
	"context"
	"errors"
	"io"
)

// ErrStorageKeyNotFound is returned by StorageProvider.Get when the key
// does not exist.
var ErrStorageKeyNotFound = errors.New("storage key not found")

// StorageProvider abstracts file storage so the server can swap between
// local disk, S3, or other backends without changing business logic.
// Uploads are opaque content-addressed blobs: the provider never inspects
// content type or filename, only the storage key it's given.
type StorageProvider interface {
	// Put writes the contents of r to the given key, creating parent directories as needed. The caller is responsible
	// for closing r.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the file at key for reading. The caller must close the returned ReadCloser. Returns
	// ErrStorageKeyNotFound when the key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the file at key. Missing keys are not treated as errors.
	Delete(ctx context.Context, key string) error
}
