package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/postgres"
)

const selectColumns = `id, name, owner_user_id, is_encrypted, people_num, created_at,
	room_key_epoch, room_key_epoch_started, leaving_to_process, avatar_key, description, updated_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.Name, &s.OwnerID, &s.IsEncrypted, &s.PeopleNum, &s.CreatedAt,
		&s.RoomKeyEpoch, &s.RoomKeyEpochStarted, &s.LeavingToProcess,
		&s.AvatarKey, &s.Description, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (ids.SessionId, error) {
	var sessionID int64
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO sessions (name, owner_user_id, is_encrypted, people_num)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			params.Name, int64(params.OwnerID), params.IsEncrypted, params.PeopleNum,
		).Scan(&sessionID)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO session_member_roles (session_id, user_id, role_id) VALUES ($1, $2, $3)`,
			sessionID, int64(params.OwnerID), int64(ids.RoleOwner),
		); err != nil {
			return fmt.Errorf("assign owner role: %w", err)
		}

		allMembers := append([]ids.UserId{params.OwnerID}, params.MemberIDs...)
		for _, member := range allMembers {
			if _, err := tx.Exec(ctx,
				`INSERT INTO session_members (session_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				sessionID, int64(member),
			); err != nil {
				return fmt.Errorf("insert member %s: %w", member, err)
			}
			if member == params.OwnerID {
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO session_member_roles (session_id, user_id, role_id) VALUES ($1, $2, $3)`,
				sessionID, int64(member), int64(ids.RoleMember),
			); err != nil {
				return fmt.Errorf("assign member role to %s: %w", member, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ids.SessionId(sessionID), nil
}

func (r *PGRepository) GetByID(ctx context.Context, id ids.SessionId) (*Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM sessions WHERE id = $1`, int64(id))
	s, err := scanSession(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *PGRepository) Delete(ctx context.Context, id ids.SessionId) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetInfo updates the mutable metadata fields of a session (set_session_info).
// Nil fields in update are left untouched.
func (r *PGRepository) SetInfo(ctx context.Context, id ids.SessionId, update InfoUpdate) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET
			name        = COALESCE($1, name),
			avatar_key  = COALESCE($2, avatar_key),
			description = COALESCE($3, description),
			updated_at  = now()
		 WHERE id = $4`,
		update.Name, update.AvatarKey, update.Description, int64(id),
	)
	if err != nil {
		return fmt.Errorf("set session info: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEncrypted flips the session's E2EE flag (e2eeize_session /
// dee2eeize_session); the caller is responsible for the room-key epoch side
// effects, which belong to the service layer's transition logic.
func (r *PGRepository) SetEncrypted(ctx context.Context, id ids.SessionId, on bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET is_encrypted = $1, updated_at = now() WHERE id = $2`, on, int64(id))
	if err != nil {
		return fmt.Errorf("set session encrypted flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountMembers returns the current member count, used by leave_session to
// decide whether the session must be cascade-deleted.
func (r *PGRepository) CountMembers(ctx context.Context, sessionID ids.SessionId) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM session_members WHERE session_id = $1`, int64(sessionID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count session members: %w", err)
	}
	return n, nil
}

func (r *PGRepository) AddMember(ctx context.Context, sessionID ids.SessionId, userID ids.UserId) error {
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO session_members (session_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			int64(sessionID), int64(userID),
		)
		if err != nil {
			return fmt.Errorf("insert session member: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyMember
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO session_member_roles (session_id, user_id, role_id) VALUES ($1, $2, $3)`,
			int64(sessionID), int64(userID), int64(ids.RoleMember),
		)
		if err != nil {
			return fmt.Errorf("assign default role: %w", err)
		}
		return nil
	})
}

func (r *PGRepository) RemoveMember(ctx context.Context, sessionID ids.SessionId, userID ids.UserId) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM session_members WHERE session_id = $1 AND user_id = $2`,
		int64(sessionID), int64(userID),
	)
	if err != nil {
		return fmt.Errorf("remove session member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	_, _ = r.db.Exec(ctx,
		`DELETE FROM session_member_roles WHERE session_id = $1 AND user_id = $2`,
		int64(sessionID), int64(userID),
	)
	return nil
}

func (r *PGRepository) GetMember(ctx context.Context, sessionID ids.SessionId, userID ids.UserId) (*Member, error) {
	var m Member
	m.SessionID = sessionID
	m.UserID = userID
	err := r.db.QueryRow(ctx,
		`SELECT display_name, joined_at FROM session_members WHERE session_id = $1 AND user_id = $2`,
		int64(sessionID), int64(userID),
	).Scan(&m.DisplayName, &m.JoinedAt)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("get session member: %w", err)
	}
	return &m, nil
}

func (r *PGRepository) ListSessionsForUser(ctx context.Context, userID ids.UserId) ([]ids.SessionId, error) {
	rows, err := r.db.Query(ctx, `SELECT session_id FROM session_members WHERE user_id = $1`, int64(userID))
	if err != nil {
		return nil, fmt.Errorf("list sessions for user: %w", err)
	}
	defer rows.Close()

	var out []ids.SessionId
	for rows.Next() {
		var sid int64
		if err := rows.Scan(&sid); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		out = append(out, ids.SessionId(sid))
	}
	return out, rows.Err()
}

func (r *PGRepository) ListMembers(ctx context.Context, sessionID ids.SessionId, after *ids.UserId, limit int) ([]Member, error) {
	var afterVal int64
	if after != nil {
		afterVal = int64(*after)
	}
	rows, err := r.db.Query(ctx,
		`SELECT user_id, display_name, joined_at FROM session_members
		 WHERE session_id = $1 AND ($2 = 0 OR user_id > $2)
		 ORDER BY user_id ASC LIMIT $3`,
		int64(sessionID), afterVal, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list session members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var uid int64
		if err := rows.Scan(&uid, &m.DisplayName, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan session member: %w", err)
		}
		m.SessionID = sessionID
		m.UserID = ids.UserId(uid)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *PGRepository) SetDisplayNameOverride(ctx context.Context, sessionID ids.SessionId, userID ids.UserId, name *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE session_members SET display_name = $1 WHERE session_id = $2 AND user_id = $3`,
		name, int64(sessionID), int64(userID),
	)
	if err != nil {
		return fmt.Errorf("set display name override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (r *PGRepository) AssignRole(ctx context.Context, sessionID ids.SessionId, userID ids.UserId, roleID ids.RoleId) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO session_member_roles (session_id, user_id, role_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		int64(sessionID), int64(userID), int64(roleID),
	)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

func (r *PGRepository) RemoveRole(ctx context.Context, sessionID ids.SessionId, userID ids.UserId, roleID ids.RoleId) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM session_member_roles WHERE session_id = $1 AND user_id = $2 AND role_id = $3`,
		int64(sessionID), int64(userID), int64(roleID),
	)
	if err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	return nil
}

func (r *PGRepository) BeginRoomKeyRotation(ctx context.Context, sessionID ids.SessionId) (int64, error) {
	var epoch int64
	err := r.db.QueryRow(ctx,
		`UPDATE sessions SET room_key_epoch = room_key_epoch + 1, room_key_epoch_started = now()
		 WHERE id = $1 RETURNING room_key_epoch`,
		int64(sessionID),
	).Scan(&epoch)
	if err != nil {
		return 0, fmt.Errorf("begin room key rotation: %w", err)
	}
	return epoch, nil
}

func (r *PGRepository) SetLeavingToProcess(ctx context.Context, sessionID ids.SessionId, flag bool) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET leaving_to_process = $1 WHERE id = $2`, flag, int64(sessionID))
	if err != nil {
		return fmt.Errorf("set leaving-to-process: %w", err)
	}
	return nil
}

func (r *PGRepository) CompleteRoomKeyRotation(ctx context.Context, sessionID ids.SessionId, epoch int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET leaving_to_process = false WHERE id = $1 AND room_key_epoch = $2`,
		int64(sessionID), epoch,
	)
	if err != nil {
		return fmt.Errorf("complete room key rotation: %w", err)
	}
	return nil
}
