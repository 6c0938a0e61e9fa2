package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/media"
	"github.com/ourchat/ourchat-server/internal/user"
)

// Engine is the single-shot and chunked upload facade: it hashes content
// into a FileKey, verifies any declared hash, deduplicates against existing
// blobs, enforces the uploader's quota (evicting their oldest auto-clean
// files first), and writes through to the configured media.StorageProvider.
type Engine struct {
	files   Repository
	users   user.Repository
	storage media.StorageProvider
	log     zerolog.Logger
}

func NewEngine(files Repository, users user.Repository, storage media.StorageProvider, logger zerolog.Logger) *Engine {
	return &Engine{files: files, users: users, storage: storage, log: logger}
}

// Put uploads a single-shot (non-chunked) file for uploaderID. declaredHash,
// if non-empty, must match the hex SHA3-256 digest of data or the upload is
// rejected with no row written. If the content already exists under any
// user, the existing blob is reused (RefCount incremented) and no bytes are
// written to storage again.
func (e *Engine) Put(ctx context.Context, uploaderID ids.UserId, contentType, declaredHash string, autoClean bool, sessionID *ids.SessionId, data []byte) (*File, error) {
	digest := ids.ContentDigestHex(data)
	if declaredHash != "" && !strings.EqualFold(declaredHash, digest) {
		return nil, ErrHashMismatch
	}

	if existing, err := e.files.FindByDigest(ctx, digest); err == nil {
		if err := e.ensureQuota(ctx, uploaderID, existing.SizeBytes); err != nil {
			return nil, err
		}
		f, err := e.files.CreateOrIncrementRef(ctx, existing.Key, existing.ContentType, existing.StorageKey, existing.SizeBytes, uploaderID, autoClean, sessionID)
		if err != nil {
			return nil, err
		}
		if err := e.users.AdjustStorageUsed(ctx, uploaderID, existing.SizeBytes); err != nil {
			return nil, err
		}
		return f, nil
	} else if err != ErrFileNotFound {
		return nil, err
	}

	if err := e.ensureQuota(ctx, uploaderID, int64(len(data))); err != nil {
		return nil, err
	}

	key, err := ids.NewFileKeyFromDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("derive file key: %w", err)
	}

	storageKey := string(key)
	if err := e.storage.Put(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("write upload to storage: %w", err)
	}

	f, err := e.files.CreateOrIncrementRef(ctx, key, contentType, storageKey, int64(len(data)), uploaderID, autoClean, sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.users.AdjustStorageUsed(ctx, uploaderID, int64(len(data))); err != nil {
		return nil, err
	}
	return f, nil
}

// Assemble combines the given chunk byte slices (already individually
// persisted by the caller during the chunked upload) into a final file and
// registers it exactly as Put would, using the declared hash, auto-clean
// flag, and session scope recorded on the session at start_upload time.
func (e *Engine) Assemble(ctx context.Context, uploaderID ids.UserId, session *ChunkSession, chunks [][]byte) (*File, error) {
	if !session.complete() {
		return nil, ErrIncompleteSession
	}
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c)
	}
	if int64(buf.Len()) != session.TotalSize {
		return nil, ErrSizeMismatch
	}
	return e.Put(ctx, uploaderID, session.ContentType, session.DeclaredHash, session.AutoClean, session.SessionID, buf.Bytes())
}

// Open returns a reader for the given content-addressed file, recording
// the access for LRU purposes.
func (e *Engine) Open(ctx context.Context, key ids.FileKey, userID ids.UserId) (io.ReadCloser, error) {
	f, err := e.files.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = e.files.TouchAccess(ctx, key, userID)
	return e.storage.Get(ctx, f.StorageKey)
}

// Remove drops userID's ownership of a file, freeing storage and reclaiming
// quota once no owner remains.
func (e *Engine) Remove(ctx context.Context, key ids.FileKey, userID ids.UserId) error {
	f, err := e.files.GetByKey(ctx, key)
	if err != nil {
		return err
	}
	orphanedStorageKey, err := e.files.RemoveOwner(ctx, key, userID)
	if err != nil {
		return err
	}
	if err := e.users.AdjustStorageUsed(ctx, userID, -f.SizeBytes); err != nil {
		return err
	}
	if orphanedStorageKey != "" {
		if err := e.storage.Delete(ctx, orphanedStorageKey); err != nil {
			e.log.Warn().Err(err).Str("storage_key", orphanedStorageKey).Msg("failed to delete orphaned blob")
		}
	}
	return nil
}

// ensureQuota evicts the uploader's auto-clean-eligible files, oldest
// upload date first, until there is room for an additional addingBytes, or
// returns ErrQuotaExceeded if even a fully-evicted quota would not fit
// (including when no evictable files exist at all).
func (e *Engine) ensureQuota(ctx context.Context, userID ids.UserId, addingBytes int64) error {
	u, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user for quota check: %w", err)
	}
	if addingBytes > u.StorageQuota {
		return ErrQuotaExceeded
	}
	used := u.StorageBytesUsed
	if used+addingBytes <= u.StorageQuota {
		return nil
	}

	const evictionBatch = 150
	for used+addingBytes > u.StorageQuota {
		candidates, err := e.files.LeastRecentlyUsed(ctx, userID, evictionBatch)
		if err != nil {
			return fmt.Errorf("list files for eviction: %w", err)
		}
		if len(candidates) == 0 {
			return ErrQuotaExceeded
		}
		for _, f := range candidates {
			if used+addingBytes <= u.StorageQuota {
				break
			}
			if err := e.Remove(ctx, f.Key, userID); err != nil {
				return fmt.Errorf("evict lru file %s: %w", f.Key, err)
			}
			used -= f.SizeBytes
		}
	}
	return nil
}
