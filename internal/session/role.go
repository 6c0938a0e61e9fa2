package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/rbac"
)

var (
	ErrRoleNotFound     = errors.New("role not found")
	ErrPredefinedRole    = errors.New("predefined roles cannot be modified or deleted")
	ErrRoleNameLength    = errors.New("role name must be between 1 and 64 characters")
)

// Role is a named bundle of SessionPermission bits, either one of the three
// predefined roles (SessionID nil) every session is seeded with, or a
// custom role scoped to one session.
type Role struct {
	ID          ids.RoleId
	SessionID   *ids.SessionId
	CreatorID   *ids.UserId
	Name        string
	Permissions rbac.SessionPermission
	CreatedAt   time.Time
}

// RoleRepository manages the role catalogue.
type RoleRepository struct {
	db *pgxpool.Pool
}

func NewRoleRepository(db *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) Create(ctx context.Context, sessionID ids.SessionId, creatorID ids.UserId, name string, perms rbac.SessionPermission) (ids.RoleId, error) {
	if len(name) < 1 || len(name) > 64 {
		return 0, ErrRoleNameLength
	}
	var roleID int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO roles (session_id, creator_user_id, name, permissions) VALUES ($1, $2, $3, $4) RETURNING id`,
		int64(sessionID), int64(creatorID), name, int64(perms),
	).Scan(&roleID)
	if err != nil {
		return 0, fmt.Errorf("create role: %w", err)
	}
	return ids.RoleId(roleID), nil
}

func (r *RoleRepository) ListForSession(ctx context.Context, sessionID ids.SessionId) ([]Role, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, creator_user_id, name, permissions, created_at FROM roles
		 WHERE session_id IS NULL OR session_id = $1 ORDER BY id ASC`,
		int64(sessionID),
	)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var role Role
		var sid *int64
		var cid *int64
		var perms int64
		if err := rows.Scan(&role.ID, &sid, &cid, &role.Name, &perms, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if sid != nil {
			s := ids.SessionId(*sid)
			role.SessionID = &s
		}
		if cid != nil {
			c := ids.UserId(*cid)
			role.CreatorID = &c
		}
		role.Permissions = rbac.SessionPermission(perms)
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *RoleRepository) UpdatePermissions(ctx context.Context, roleID ids.RoleId, perms rbac.SessionPermission) error {
	if isPredefined(roleID) {
		return ErrPredefinedRole
	}
	tag, err := r.db.Exec(ctx, `UPDATE roles SET permissions = $1 WHERE id = $2`, int64(perms), int64(roleID))
	if err != nil {
		return fmt.Errorf("update role permissions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *RoleRepository) Delete(ctx context.Context, roleID ids.RoleId) error {
	if isPredefined(roleID) {
		return ErrPredefinedRole
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, int64(roleID))
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func isPredefined(roleID ids.RoleId) bool {
	return roleID == ids.RoleMember || roleID == ids.RoleAdmin || roleID == ids.RoleOwner
}
