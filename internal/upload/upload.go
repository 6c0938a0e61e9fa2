// Package upload implements the chunked upload engine: content-addressed
// storage with cross-user deduplication, per-user quota enforcement with
// least-recently-used eviction, and multi-instance coordination of
// in-progress chunked upload sessions via Valkey.
package upload

import (
	"context"
	"errors"
	"time"

	"github.com/ourchat/ourchat-server/internal/ids"
)

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrQuotaExceeded     = errors.New("upload would exceed the user's storage quota")
	ErrSessionNotFound   = errors.New("upload session not found or expired")
	ErrSessionComplete   = errors.New("upload session has already been completed")
	ErrChunkOutOfRange   = errors.New("chunk index is outside the declared chunk count")
	ErrIncompleteSession = errors.New("not all chunks have been received")
	ErrSizeMismatch      = errors.New("assembled file size does not match the declared size")
	ErrHashMismatch      = errors.New("uploaded content does not match the declared hash")
	ErrWrongInstance     = errors.New("chunk upload session is owned by a different instance")
)

// File is one content-addressed blob. The same FileKey is shared by every
// uploader whose content hashes to it; RefCount tracks how many users
// currently reference it so storage is only freed once nobody does.
type File struct {
	Key          ids.FileKey
	ContentType  string
	SizeBytes    int64
	StorageKey   string
	RefCount     int
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Repository is the durable-store contract for deduplicated files and the
// per-user ownership rows that back quota accounting and LRU eviction.
type Repository interface {
	// GetByKey returns the file record stored under the given FileKey, or
	// ErrFileNotFound if no such record exists.
	GetByKey(ctx context.Context, key ids.FileKey) (*File, error)

	// FindByDigest returns the file record whose content hashes to digest
	// (the suffix shared by every FileKey for that content), regardless of
	// which random prefix it was first stored under. ErrFileNotFound if no
	// upload has produced this content yet.
	FindByDigest(ctx context.Context, digest string) (*File, error)

	// CreateOrIncrementRef inserts a new File row, or increments RefCount on
	// an existing one (deduplication), and records the given user as an
	// owner with the given auto-clean eligibility and optional session
	// scope. Returns the resulting file.
	CreateOrIncrementRef(ctx context.Context, key ids.FileKey, contentType, storageKey string, size int64, ownerID ids.UserId, autoClean bool, sessionID *ids.SessionId) (*File, error)

	// TouchAccess updates LastAccessed for LRU purposes.
	TouchAccess(ctx context.Context, key ids.FileKey, userID ids.UserId) error

	// RemoveOwner decrements RefCount for the given user's ownership of a
	// file. When RefCount reaches zero the File row is deleted and the
	// storage key is returned so the caller can delete the underlying blob;
	// otherwise the returned string is empty.
	RemoveOwner(ctx context.Context, key ids.FileKey, userID ids.UserId) (storageKeyIfOrphaned string, err error)

	// LeastRecentlyUsed returns up to limit of the given user's auto-clean
	// eligible files, oldest upload date first, for quota eviction.
	LeastRecentlyUsed(ctx context.Context, userID ids.UserId, limit int) ([]File, error)
}
