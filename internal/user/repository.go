package user

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/postgres"
)

const selectColumns = `id, ocid, email, display_name, avatar_key, public_key, storage_bytes_used, storage_quota,
	friends_count, status, oauth_provider, created_at, update_time, public_update_time`

const selectCredentialsColumns = `id, ocid, email, password_hash, display_name, avatar_key, public_key,
	storage_bytes_used, storage_quota, friends_count, status, oauth_provider, created_at, update_time, public_update_time`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Ocid, &u.Email, &u.DisplayName, &u.AvatarKey, &u.PublicKey,
		&u.StorageBytesUsed, &u.StorageQuota, &u.FriendsCount, &u.Status, &u.OAuthProvider,
		&u.CreatedAt, &u.UpdateTime, &u.PublicUpdateTime,
	)
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func scanCredentials(row pgx.Row) (*Credentials, error) {
	var c Credentials
	err := row.Scan(
		&c.ID, &c.Ocid, &c.Email, &c.PasswordHash, &c.DisplayName, &c.AvatarKey, &c.PublicKey,
		&c.StorageBytesUsed, &c.StorageQuota, &c.FriendsCount, &c.Status, &c.OAuthProvider,
		&c.CreatedAt, &c.UpdateTime, &c.PublicUpdateTime,
	)
	if err != nil {
		return nil, fmt.Errorf("scan credentials: %w", err)
	}
	return &c, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed user repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (ids.UserId, error) {
	var userID int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (ocid, email, display_name, password_hash, storage_quota)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		params.Ocid, params.Email, params.DisplayName, params.PasswordHash, defaultQuotaBytes,
	).Scan(&userID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return 0, ErrAlreadyExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return ids.UserId(userID), nil
}

func (r *PGRepository) CreateOAuth(ctx context.Context, params CreateOAuthParams) (ids.UserId, error) {
	var userID int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (ocid, email, display_name, oauth_provider, storage_quota)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		params.Ocid, params.Email, params.DisplayName, params.OAuthProvider, defaultQuotaBytes,
	).Scan(&userID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return 0, ErrAlreadyExists
		}
		return 0, fmt.Errorf("insert oauth user: %w", err)
	}
	return ids.UserId(userID), nil
}

func (r *PGRepository) GetByID(ctx context.Context, id ids.UserId) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE id = $1`, int64(id))
	u, err := scanUser(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *PGRepository) GetByOcid(ctx context.Context, ocid ids.Ocid) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE ocid = $1`, string(ocid))
	u, err := scanUser(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *PGRepository) GetByEmail(ctx context.Context, email string) (*Credentials, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectCredentialsColumns+` FROM users WHERE email = $1`, email)
	c, err := scanCredentials(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *PGRepository) GetCredentialsByID(ctx context.Context, id ids.UserId) (*Credentials, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectCredentialsColumns+` FROM users WHERE id = $1`, int64(id))
	c, err := scanCredentials(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *PGRepository) OcidExists(ctx context.Context, ocid ids.Ocid) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE ocid = $1)`, string(ocid)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ocid existence: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) UpdatePasswordHash(ctx context.Context, userID ids.UserId, hash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $1, update_time = now() WHERE id = $2`, hash, int64(userID))
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) Update(ctx context.Context, id ids.UserId, params UpdateParams) (*User, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE users SET
			display_name = COALESCE($2, display_name),
			avatar_key = COALESCE($3, avatar_key),
			public_key = COALESCE(public_key, $4),
			update_time = now(),
			public_update_time = now()
		 WHERE id = $1
		 RETURNING `+selectColumns,
		int64(id), params.DisplayName, params.AvatarKey, params.PublicKey,
	)
	u, err := scanUser(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *PGRepository) SetStatus(ctx context.Context, id ids.UserId, status AccountStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET status = $1, update_time = now() WHERE id = $2`, status, int64(id))
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) AdjustStorageUsed(ctx context.Context, id ids.UserId, deltaBytes int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET storage_bytes_used = storage_bytes_used + $1 WHERE id = $2`,
		deltaBytes, int64(id),
	)
	if err != nil {
		return fmt.Errorf("adjust storage used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) AdjustFriendsCount(ctx context.Context, id ids.UserId, delta int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET friends_count = friends_count + $1 WHERE id = $2`,
		delta, int64(id),
	)
	if err != nil {
		return fmt.Errorf("adjust friends count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, id ids.UserId) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const defaultQuotaBytes = 5 << 30
