package upload

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/user"
)

type fakeFiles struct {
	byKey    map[ids.FileKey]*File
	byDigest map[string]ids.FileKey
	owners   map[ids.FileKey]map[ids.UserId]bool
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{
		byKey:    map[ids.FileKey]*File{},
		byDigest: map[string]ids.FileKey{},
		owners:   map[ids.FileKey]map[ids.UserId]bool{},
	}
}

func (f *fakeFiles) GetByKey(_ context.Context, key ids.FileKey) (*File, error) {
	if file, ok := f.byKey[key]; ok {
		return file, nil
	}
	return nil, ErrFileNotFound
}

func (f *fakeFiles) FindByDigest(_ context.Context, digest string) (*File, error) {
	if key, ok := f.byDigest[digest]; ok {
		return f.byKey[key], nil
	}
	return nil, ErrFileNotFound
}

func (f *fakeFiles) CreateOrIncrementRef(_ context.Context, key ids.FileKey, contentType, storageKey string, size int64, ownerID ids.UserId, _ bool, _ *ids.SessionId) (*File, error) {
	file, ok := f.byKey[key]
	if !ok {
		file = &File{Key: key, ContentType: contentType, StorageKey: storageKey, SizeBytes: size, CreatedAt: time.Now(), LastAccessed: time.Now()}
		f.byKey[key] = file
		f.byDigest[key.ContentDigest()] = key
		f.owners[key] = map[ids.UserId]bool{}
	}
	if !f.owners[key][ownerID] {
		file.RefCount++
		f.owners[key][ownerID] = true
	}
	return file, nil
}

func (f *fakeFiles) TouchAccess(_ context.Context, _ ids.FileKey, _ ids.UserId) error { return nil }

func (f *fakeFiles) RemoveOwner(_ context.Context, key ids.FileKey, userID ids.UserId) (string, error) {
	file, ok := f.byKey[key]
	if !ok || !f.owners[key][userID] {
		return "", nil
	}
	delete(f.owners[key], userID)
	file.RefCount--
	if file.RefCount <= 0 {
		delete(f.byKey, key)
		delete(f.byDigest, key.ContentDigest())
		return file.StorageKey, nil
	}
	return "", nil
}

func (f *fakeFiles) LeastRecentlyUsed(_ context.Context, userID ids.UserId, limit int) ([]File, error) {
	var out []File
	for key, owners := range f.owners {
		if owners[userID] {
			out = append(out, *f.byKey[key])
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeUsers struct {
	user.Repository
	users map[ids.UserId]*user.User
}

func (f *fakeUsers) GetByID(_ context.Context, id ids.UserId) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) AdjustStorageUsed(_ context.Context, id ids.UserId, delta int64) error {
	f.users[id].StorageBytesUsed += delta
	return nil
}

type fakeStorage struct {
	blobs map[string][]byte
}

func newFakeStorage() *fakeStorage { return &fakeStorage{blobs: map[string][]byte{}} }

func (s *fakeStorage) Put(_ context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.blobs[key] = data
	return nil
}

func (s *fakeStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrFileNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	delete(s.blobs, key)
	return nil
}

func newTestEngine(quota int64) (*Engine, *fakeFiles, *fakeUsers) {
	files := newFakeFiles()
	users := &fakeUsers{users: map[ids.UserId]*user.User{
		1: {ID: 1, StorageQuota: quota},
		2: {ID: 2, StorageQuota: quota},
	}}
	return NewEngine(files, users, newFakeStorage(), zerolog.Nop()), files, users
}

func TestPutRejectsWrongDeclaredHash(t *testing.T) {
	engine, _, _ := newTestEngine(1 << 20)
	_, err := engine.Put(context.Background(), 1, "text/plain", "0000", false, nil, []byte("hello"))
	if err != ErrHashMismatch {
		t.Fatalf("err = %v, want ErrHashMismatch", err)
	}
}

func TestPutAcceptsMatchingDeclaredHash(t *testing.T) {
	engine, _, _ := newTestEngine(1 << 20)
	data := []byte("hello")
	digest := ids.ContentDigestHex(data)
	f, err := engine.Put(context.Background(), 1, "text/plain", digest, false, nil, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if f.SizeBytes != int64(len(data)) {
		t.Errorf("SizeBytes = %d, want %d", f.SizeBytes, len(data))
	}
}

func TestPutDeduplicatesByContentAcrossUsers(t *testing.T) {
	engine, files, users := newTestEngine(1 << 20)
	data := []byte("shared content")

	first, err := engine.Put(context.Background(), 1, "text/plain", "", false, nil, data)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	second, err := engine.Put(context.Background(), 2, "text/plain", "", false, nil, data)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if first.Key != second.Key {
		t.Errorf("Key mismatch: %q vs %q — same content should dedupe to one blob", first.Key, second.Key)
	}
	if files.byKey[first.Key].RefCount != 2 {
		t.Errorf("RefCount = %d, want 2", files.byKey[first.Key].RefCount)
	}
	if users.users[1].StorageBytesUsed != int64(len(data)) || users.users[2].StorageBytesUsed != int64(len(data)) {
		t.Error("both uploaders should be charged quota for the deduplicated blob")
	}
}

func TestPutRejectsOversizedUploadWithNoEvictableFiles(t *testing.T) {
	engine, _, _ := newTestEngine(10)
	_, err := engine.Put(context.Background(), 1, "text/plain", "", false, nil, bytes.Repeat([]byte("x"), 11))
	if err != ErrQuotaExceeded {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestPutEvictsAutoCleanFilesToFitQuota(t *testing.T) {
	engine, _, users := newTestEngine(12)
	old := bytes.Repeat([]byte("a"), 10)
	if _, err := engine.Put(context.Background(), 1, "text/plain", "", true, nil, old); err != nil {
		t.Fatalf("seed Put: %v", err)
	}
	fresh := bytes.Repeat([]byte("b"), 10)
	if _, err := engine.Put(context.Background(), 1, "text/plain", "", true, nil, fresh); err != nil {
		t.Fatalf("evicting Put: %v", err)
	}
	if users.users[1].StorageBytesUsed != 10 {
		t.Errorf("StorageBytesUsed = %d, want 10 after evicting the old blob", users.users[1].StorageBytesUsed)
	}
}
