package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ourchat/ourchat-server/internal/ids"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) IsSessionOwner(ctx context.Context, userID ids.UserId, sessionID ids.SessionId) (bool, error) {
	var isOwner bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1 AND owner_user_id = $2)`,
		int64(sessionID), int64(userID),
	).Scan(&isOwner)
	if err != nil {
		return false, fmt.Errorf("check session owner: %w", err)
	}
	return isOwner, nil
}

func (s *PGStore) UserSessionRoles(ctx context.Context, userID ids.UserId, sessionID ids.SessionId) ([]ids.RoleId, error) {
	rows, err := s.db.Query(ctx,
		`SELECT role_id FROM session_member_roles WHERE user_id = $1 AND session_id = $2`,
		int64(userID), int64(sessionID),
	)
	if err != nil {
		return nil, fmt.Errorf("query user session roles: %w", err)
	}
	defer rows.Close()

	var roleIDs []ids.RoleId
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan role id: %w", err)
		}
		roleIDs = append(roleIDs, ids.RoleId(id))
	}
	return roleIDs, rows.Err()
}

func (s *PGStore) RolePermissions(ctx context.Context, roleID ids.RoleId) (SessionPermission, error) {
	var perm int64
	err := s.db.QueryRow(ctx, `SELECT permissions FROM roles WHERE id = $1`, int64(roleID)).Scan(&perm)
	if err != nil {
		return 0, fmt.Errorf("query role permissions: %w", err)
	}
	return SessionPermission(perm), nil
}

func (s *PGStore) ServerPermissions(ctx context.Context, userID ids.UserId) (ServerPermission, error) {
	var perm int64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(BIT_OR(permissions), 0) FROM server_management_roles WHERE user_id = $1`,
		int64(userID),
	).Scan(&perm)
	if err != nil {
		return 0, fmt.Errorf("query server permissions: %w", err)
	}
	return ServerPermission(perm), nil
}
