package upload

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/postgres"
)

// PGRepository implements Repository using PostgreSQL. Files are
// content-addressed in the files table; file_owners is the many-to-many
// join recording which users currently reference a given key.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

func scanFile(row pgx.Row) (*File, error) {
	var f File
	err := row.Scan(&f.Key, &f.ContentType, &f.StorageKey, &f.SizeBytes, &f.RefCount, &f.CreatedAt, &f.LastAccessed)
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return &f, nil
}

func (r *PGRepository) GetByKey(ctx context.Context, key ids.FileKey) (*File, error) {
	row := r.db.QueryRow(ctx,
		`SELECT key, content_type, storage_key, size_bytes, ref_count, created_at, last_accessed
		 FROM files WHERE key = $1`, string(key))
	f, err := scanFile(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return f, nil
}

func (r *PGRepository) FindByDigest(ctx context.Context, digest string) (*File, error) {
	row := r.db.QueryRow(ctx,
		`SELECT key, content_type, storage_key, size_bytes, ref_count, created_at, last_accessed
		 FROM files WHERE content_digest = $1 LIMIT 1`, digest)
	f, err := scanFile(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return f, nil
}

func (r *PGRepository) CreateOrIncrementRef(ctx context.Context, key ids.FileKey, contentType, storageKey string, size int64, ownerID ids.UserId, autoClean bool, sessionID *ids.SessionId) (*File, error) {
	var result *File
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO files (key, content_digest, content_type, storage_key, size_bytes, ref_count, created_at, last_accessed)
			 VALUES ($1, $2, $3, $4, $5, 1, now(), now())
			 ON CONFLICT (key) DO UPDATE SET ref_count = files.ref_count + 1
			 RETURNING key, content_type, storage_key, size_bytes, ref_count, created_at, last_accessed`,
			string(key), key.ContentDigest(), contentType, storageKey, size,
		)
		f, err := scanFile(row)
		if err != nil {
			return fmt.Errorf("upsert file: %w", err)
		}
		var sid *int64
		if sessionID != nil {
			v := int64(*sessionID)
			sid = &v
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO file_owners (file_key, user_id, auto_clean, session_id, last_accessed)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (file_key, user_id) DO UPDATE SET auto_clean = $3, session_id = $4, last_accessed = now()`,
			string(key), int64(ownerID), autoClean, sid,
		); err != nil {
			return fmt.Errorf("record file owner: %w", err)
		}
		result = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PGRepository) TouchAccess(ctx context.Context, key ids.FileKey, userID ids.UserId) error {
	_, err := r.db.Exec(ctx,
		`UPDATE file_owners SET last_accessed = now() WHERE file_key = $1 AND user_id = $2`,
		string(key), int64(userID),
	)
	if err != nil {
		return fmt.Errorf("touch file access: %w", err)
	}
	return nil
}

func (r *PGRepository) RemoveOwner(ctx context.Context, key ids.FileKey, userID ids.UserId) (string, error) {
	var storageKey string
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM file_owners WHERE file_key = $1 AND user_id = $2`, string(key), int64(userID))
		if err != nil {
			return fmt.Errorf("remove file owner: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		var refCount int
		err = tx.QueryRow(ctx,
			`UPDATE files SET ref_count = ref_count - 1 WHERE key = $1 RETURNING ref_count`,
			string(key),
		).Scan(&refCount)
		if err != nil {
			return fmt.Errorf("decrement file ref count: %w", err)
		}
		if refCount <= 0 {
			err = tx.QueryRow(ctx, `DELETE FROM files WHERE key = $1 RETURNING storage_key`, string(key)).Scan(&storageKey)
			if err != nil {
				return fmt.Errorf("delete orphaned file: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return storageKey, nil
}

func (r *PGRepository) LeastRecentlyUsed(ctx context.Context, userID ids.UserId, limit int) ([]File, error) {
	rows, err := r.db.Query(ctx,
		`SELECT f.key, f.content_type, f.storage_key, f.size_bytes, f.ref_count, f.created_at, o.last_accessed
		 FROM file_owners o JOIN files f ON f.key = o.file_key
		 WHERE o.user_id = $1 AND o.auto_clean = true
		 ORDER BY f.created_at ASC LIMIT $2`,
		int64(userID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list least recently used files: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.Key, &f.ContentType, &f.StorageKey, &f.SizeBytes, &f.RefCount, &f.CreatedAt, &f.LastAccessed); err != nil {
			return nil, fmt.Errorf("scan lru file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
