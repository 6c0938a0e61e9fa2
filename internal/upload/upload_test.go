package upload

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ourchat/ourchat-server/internal/ids"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestChunkSessionCompleteness(t *testing.T) {
	s := &ChunkSession{TotalChunks: 3, ReceivedMask: []bool{true, false, true}}
	if s.complete() {
		t.Error("session with a missing chunk should not be complete")
	}
	s.ReceivedMask[1] = true
	if !s.complete() {
		t.Error("session with all chunks received should be complete")
	}
}

func TestSessionStoreBeginGetMarkReceived(t *testing.T) {
	rdb := newTestRedis(t)
	store := NewSessionStore(rdb, time.Minute)
	ctx := context.Background()

	session, err := store.Begin(ctx, ids.UserId(1), "image/png", 10, 4, "", false, nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if session.TotalChunks != 3 {
		t.Errorf("TotalChunks = %d, want 3", session.TotalChunks)
	}
	if session.OwnerInstanceID != store.instanceID {
		t.Errorf("OwnerInstanceID = %q, want %q", session.OwnerInstanceID, store.instanceID)
	}

	loaded, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.complete() {
		t.Error("freshly begun session should not be complete")
	}

	for i := 0; i < 3; i++ {
		loaded, err = store.MarkReceived(ctx, session.ID, i)
		if err != nil {
			t.Fatalf("MarkReceived(%d): %v", i, err)
		}
	}
	if !loaded.complete() {
		t.Error("session should be complete after marking every chunk received")
	}

	if _, err := store.MarkReceived(ctx, session.ID, 5); err != ErrChunkOutOfRange {
		t.Errorf("MarkReceived(5) err = %v, want ErrChunkOutOfRange", err)
	}
}

func TestStoreAndAssembleChunks(t *testing.T) {
	rdb := newTestRedis(t)
	store := NewSessionStore(rdb, time.Minute)
	ctx := context.Background()

	session, err := store.Begin(ctx, ids.UserId(1), "text/plain", 6, 3, "", false, nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := store.StoreChunk(ctx, session.ID, 0, []byte("abc")); err != nil {
		t.Fatalf("StoreChunk(0): %v", err)
	}
	if err := store.StoreChunk(ctx, session.ID, 1, []byte("def")); err != nil {
		t.Fatalf("StoreChunk(1): %v", err)
	}

	chunks, err := store.AssembleChunks(ctx, session)
	if err != nil {
		t.Fatalf("AssembleChunks: %v", err)
	}
	if string(chunks[0]) != "abc" || string(chunks[1]) != "def" {
		t.Errorf("chunks = %v, want [abc def]", chunks)
	}
}

func TestStoreChunkRejectsWrongInstance(t *testing.T) {
	rdb := newTestRedis(t)
	owner := NewSessionStore(rdb, time.Minute)
	ctx := context.Background()

	session, err := owner.Begin(ctx, ids.UserId(1), "text/plain", 6, 3, "", false, nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	other := NewSessionStore(rdb, time.Minute)
	if err := other.StoreChunk(ctx, session.ID, 0, []byte("abc")); err != ErrWrongInstance {
		t.Errorf("StoreChunk from a different instance err = %v, want ErrWrongInstance", err)
	}

	if err := owner.StoreChunk(ctx, session.ID, 0, []byte("abc")); err != nil {
		t.Errorf("StoreChunk from the owning instance: %v", err)
	}
}
