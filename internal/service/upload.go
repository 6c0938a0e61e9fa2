package service

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/upload"
)

// UploadService implements single-shot and chunked file upload.
type UploadService struct {
	engine    *upload.Engine
	sessions  *upload.SessionStore
	maxSize   int64
	chunkSize int64
	log       zerolog.Logger
}

func NewUploadService(engine *upload.Engine, sessions *upload.SessionStore, maxSize, chunkSize int64, logger zerolog.Logger) *UploadService {
	return &UploadService{engine: engine, sessions: sessions, maxSize: maxSize, chunkSize: chunkSize, log: logger}
}

// PutSingle uploads a complete file in one call. declaredHash, if non-empty,
// is verified against the content's SHA3-256 digest before anything is
// written.
func (s *UploadService) PutSingle(ctx context.Context, uploaderID ids.UserId, contentType, declaredHash string, autoClean bool, sessionID *ids.SessionId, data []byte) (*upload.File, error) {
	if int64(len(data)) > s.maxSize {
		return nil, apierrors.New(apierrors.CodeInvalidArgument, "file exceeds the maximum upload size")
	}
	f, err := s.engine.Put(ctx, uploaderID, contentType, declaredHash, autoClean, sessionID, data)
	if err != nil {
		return nil, mapUploadErr(err)
	}
	return f, nil
}

// BeginChunked starts a chunked upload session for a file of totalSize
// bytes, recording the declared hash and auto-clean eligibility that will
// be enforced/applied when the upload completes.
func (s *UploadService) BeginChunked(ctx context.Context, uploaderID ids.UserId, contentType, declaredHash string, totalSize int64, autoClean bool, sessionID *ids.SessionId) (*upload.ChunkSession, error) {
	if totalSize > s.maxSize {
		return nil, apierrors.New(apierrors.CodeInvalidArgument, "file exceeds the maximum upload size")
	}
	session, err := s.sessions.Begin(ctx, uploaderID, contentType, totalSize, s.chunkSize, declaredHash, autoClean, sessionID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "begin chunked upload", err)
	}
	return session, nil
}

// PutChunk stores one chunk's bytes and marks it received.
func (s *UploadService) PutChunk(ctx context.Context, sessionID uuid.UUID, index int, data []byte) (*upload.ChunkSession, error) {
	if err := s.sessions.StoreChunk(ctx, sessionID, index, data); err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "store chunk", err)
	}
	session, err := s.sessions.MarkReceived(ctx, sessionID, index)
	if err != nil {
		return nil, mapUploadErr(err)
	}
	return session, nil
}

// Complete assembles a finished chunked upload into a registered file.
func (s *UploadService) Complete(ctx context.Context, uploaderID ids.UserId, sessionID uuid.UUID) (*upload.File, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, mapUploadErr(err)
	}
	chunks, err := s.sessions.AssembleChunks(ctx, session)
	if err != nil {
		return nil, mapUploadErr(err)
	}
	f, err := s.engine.Assemble(ctx, uploaderID, session, chunks)
	if err != nil {
		return nil, mapUploadErr(err)
	}
	_ = s.sessions.Discard(ctx, sessionID)
	return f, nil
}

// Cancel discards an in-progress chunked upload session and its stored
// chunks without assembling a file.
func (s *UploadService) Cancel(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.sessions.Discard(ctx, sessionID); err != nil {
		return mapUploadErr(err)
	}
	return nil
}

func (s *UploadService) Open(ctx context.Context, key ids.FileKey, userID ids.UserId) (io.ReadCloser, error) {
	r, err := s.engine.Open(ctx, key, userID)
	if err != nil {
		return nil, mapUploadErr(err)
	}
	return r, nil
}

func mapUploadErr(err error) error {
	switch err {
	case upload.ErrFileNotFound:
		return apierrors.Wrap(apierrors.CodeNotFound, err.Error(), err)
	case upload.ErrQuotaExceeded:
		return apierrors.Wrap(apierrors.CodeResourceExhausted, err.Error(), err)
	case upload.ErrSessionNotFound:
		return apierrors.Wrap(apierrors.CodeNotFound, err.Error(), err)
	case upload.ErrChunkOutOfRange, upload.ErrSizeMismatch, upload.ErrIncompleteSession, upload.ErrHashMismatch:
		return apierrors.Wrap(apierrors.CodeInvalidArgument, err.Error(), err)
	case upload.ErrWrongInstance:
		return apierrors.Wrap(apierrors.CodeFailedPrecondition, err.Error(), err)
	default:
		return apierrors.Wrap(apierrors.CodeInternal, "upload failed", err)
	}
}
