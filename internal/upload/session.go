package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ourchat/ourchat-server/internal/ids"
)

// ChunkSession tracks an in-progress chunked upload. Its metadata lives in
// Valkey (TTL'd) so it can be looked up from any instance, but chunk bytes
// are only ever accepted by the instance that created the session
// (OwnerInstanceID) — any other instance rejects with ErrWrongInstance.
type ChunkSession struct {
	ID              uuid.UUID      `json:"id"`
	UploaderID      ids.UserId     `json:"uploader_id"`
	ContentType     string         `json:"content_type"`
	TotalSize       int64          `json:"total_size"`
	ChunkSize       int64          `json:"chunk_size"`
	TotalChunks     int            `json:"total_chunks"`
	ReceivedMask    []bool         `json:"received_mask"`
	DeclaredHash    string         `json:"declared_hash"`
	AutoClean       bool           `json:"auto_clean"`
	SessionID       *ids.SessionId `json:"session_id,omitempty"`
	OwnerInstanceID string         `json:"owner_instance_id"`
}

func (s *ChunkSession) complete() bool {
	for _, got := range s.ReceivedMask {
		if !got {
			return false
		}
	}
	return true
}

// SessionStore persists ChunkSession state in Valkey. Each process that
// constructs a SessionStore gets its own instanceID, used to reject chunk
// writes for sessions a different instance owns.
type SessionStore struct {
	rdb        *redis.Client
	ttl        time.Duration
	instanceID string
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl, instanceID: uuid.New().String()}
}

func sessionKey(id uuid.UUID) string { return "upload:session:" + id.String() }

// Begin creates a new chunk session, owned by this instance, sized for
// totalSize bytes split into chunkSize-byte pieces.
func (s *SessionStore) Begin(ctx context.Context, uploaderID ids.UserId, contentType string, totalSize, chunkSize int64, declaredHash string, autoClean bool, sessionID *ids.SessionId) (*ChunkSession, error) {
	totalChunks := int((totalSize + chunkSize - 1) / chunkSize)
	session := &ChunkSession{
		ID:              uuid.New(),
		UploaderID:      uploaderID,
		ContentType:     contentType,
		TotalSize:       totalSize,
		ChunkSize:       chunkSize,
		TotalChunks:     totalChunks,
		ReceivedMask:    make([]bool, totalChunks),
		DeclaredHash:    declaredHash,
		AutoClean:       autoClean,
		SessionID:       sessionID,
		OwnerInstanceID: s.instanceID,
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionStore) save(ctx context.Context, session *ChunkSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal chunk session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save chunk session: %w", err)
	}
	return nil
}

// Get loads a chunk session, returning ErrSessionNotFound if it has
// expired or never existed.
func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*ChunkSession, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load chunk session: %w", err)
	}
	var session ChunkSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal chunk session: %w", err)
	}
	return &session, nil
}

// MarkReceived records chunk index as received and refreshes the TTL.
func (s *SessionStore) MarkReceived(ctx context.Context, id uuid.UUID, index int) (*ChunkSession, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= session.TotalChunks {
		return nil, ErrChunkOutOfRange
	}
	session.ReceivedMask[index] = true
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Discard removes a chunk session and any chunk bytes stored for it, e.g.
// once assembly completes or the upload is aborted.
func (s *SessionStore) Discard(ctx context.Context, id uuid.UUID) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.Del(ctx, chunkBlobKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("discard chunk session: %w", err)
	}
	return nil
}

func chunkBlobKey(id uuid.UUID) string { return "upload:chunks:" + id.String() }

// StoreChunk persists one chunk's raw bytes under the session, addressable
// by index via a Valkey hash. Only the instance that began the session may
// store chunks for it; any other instance gets ErrWrongInstance, matching
// the single-instance local-state ownership the chunked upload protocol
// requires.
func (s *SessionStore) StoreChunk(ctx context.Context, id uuid.UUID, index int, data []byte) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if session.OwnerInstanceID != s.instanceID {
		return ErrWrongInstance
	}
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, chunkBlobKey(id), fmt.Sprintf("%d", index), data)
	pipe.Expire(ctx, chunkBlobKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store chunk: %w", err)
	}
	return nil
}

// AssembleChunks reads back every stored chunk for a completed session, in
// order.
func (s *SessionStore) AssembleChunks(ctx context.Context, session *ChunkSession) ([][]byte, error) {
	raw, err := s.rdb.HGetAll(ctx, chunkBlobKey(session.ID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	out := make([][]byte, session.TotalChunks)
	for i := 0; i < session.TotalChunks; i++ {
		v, ok := raw[fmt.Sprintf("%d", i)]
		if !ok {
			return nil, ErrIncompleteSession
		}
		out[i] = []byte(v)
	}
	return out, nil
}
