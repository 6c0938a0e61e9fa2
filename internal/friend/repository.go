package friend

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/postgres"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.MessageID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt, &inv.ResolvedAt)
	if err != nil {
		return nil, fmt.Errorf("scan invitation: %w", err)
	}
	return &inv, nil
}

func (r *PGRepository) CreateInvitation(ctx context.Context, messageID ids.MessageId, inviterID, inviteeID ids.UserId) (*Invitation, error) {
	if inviterID == inviteeID {
		return nil, ErrSelfInvite
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO friend_invitations (message_id, inviter_id, invitee_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, message_id, inviter_id, invitee_id, status, created_at, resolved_at`,
		int64(messageID), int64(inviterID), int64(inviteeID), InvitationPending,
	)
	return scanInvitation(row)
}

func (r *PGRepository) GetInvitation(ctx context.Context, id int64) (*Invitation, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, message_id, inviter_id, invitee_id, status, created_at, resolved_at
		 FROM friend_invitations WHERE id = $1`, id)
	inv, err := scanInvitation(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (r *PGRepository) ResolveInvitation(ctx context.Context, id int64, inviteeID ids.UserId, accept bool) (*Invitation, error) {
	var result *Invitation
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var inv Invitation
		err := tx.QueryRow(ctx,
			`SELECT id, message_id, inviter_id, invitee_id, status, created_at, resolved_at
			 FROM friend_invitations WHERE id = $1 FOR UPDATE`, id,
		).Scan(&inv.ID, &inv.MessageID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt, &inv.ResolvedAt)
		if err != nil {
			if postgres.IsNoRows(err) {
				return ErrInvitationNotFound
			}
			return fmt.Errorf("lookup invitation: %w", err)
		}
		if inv.InviteeID != inviteeID {
			return ErrNotInvitee
		}
		if inv.Status != InvitationPending {
			return ErrAlreadyResolved
		}

		status := InvitationDeclined
		if accept {
			status = InvitationAccepted
		}
		now := time.Now()
		if _, err := tx.Exec(ctx,
			`UPDATE friend_invitations SET status = $1, resolved_at = $2 WHERE id = $3`,
			status, now, id,
		); err != nil {
			return fmt.Errorf("resolve invitation: %w", err)
		}
		inv.Status = status
		inv.ResolvedAt = &now
		result = &inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PGRepository) AreFriends(ctx context.Context, a, b ids.UserId) (bool, error) {
	lo, hi := Pair(a, b)
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM friendships WHERE user_a = $1 AND user_b = $2)`,
		int64(lo), int64(hi),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) AddFriendship(ctx context.Context, a, b ids.UserId) error {
	lo, hi := Pair(a, b)
	_, err := r.db.Exec(ctx,
		`INSERT INTO friendships (user_a, user_b) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		int64(lo), int64(hi),
	)
	if err != nil {
		return fmt.Errorf("add friendship: %w", err)
	}
	return nil
}

func (r *PGRepository) ListFriends(ctx context.Context, userID ids.UserId) ([]ids.UserId, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_a, user_b FROM friendships WHERE user_a = $1 OR user_b = $1 ORDER BY created_at ASC`,
		int64(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var out []ids.UserId
	for rows.Next() {
		var a, b int64
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("scan friendship: %w", err)
		}
		if ids.UserId(a) == userID {
			out = append(out, ids.UserId(b))
		} else {
			out = append(out, ids.UserId(a))
		}
	}
	return out, rows.Err()
}

func (r *PGRepository) RemoveFriendship(ctx context.Context, a, b ids.UserId) error {
	lo, hi := Pair(a, b)
	_, err := r.db.Exec(ctx, `DELETE FROM friendships WHERE user_a = $1 AND user_b = $2`, int64(lo), int64(hi))
	if err != nil {
		return fmt.Errorf("remove friendship: %w", err)
	}
	return nil
}
