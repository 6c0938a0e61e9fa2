package message

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/postgres"
)

const selectColumns = `id, type, data, sender_id, session_id, recipient_id, is_encrypted, is_all_user, recalled, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	var senderID, sessionID, recipientID *int64
	err := row.Scan(&m.ID, &m.Type, &m.Data, &senderID, &sessionID, &recipientID, &m.IsEncrypted, &m.IsAllUser, &m.Recalled, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if senderID != nil {
		u := ids.UserId(*senderID)
		m.SenderID = &u
	}
	if sessionID != nil {
		s := ids.SessionId(*sessionID)
		m.SessionID = &s
	}
	if recipientID != nil {
		u := ids.UserId(*recipientID)
		m.RecipientID = &u
	}
	return &m, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Message, error) {
	var senderID, sessionID, recipientID *int64
	if params.SenderID != nil {
		v := int64(*params.SenderID)
		senderID = &v
	}
	if params.SessionID != nil {
		v := int64(*params.SessionID)
		sessionID = &v
	}
	if params.RecipientID != nil {
		v := int64(*params.RecipientID)
		recipientID = &v
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO messages (type, data, sender_id, session_id, recipient_id, is_encrypted, is_all_user)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+selectColumns,
		params.Type, []byte(params.Data), senderID, sessionID, recipientID, params.IsEncrypted, params.IsAllUser,
	)
	return scanMessage(row)
}

func (r *PGRepository) GetByID(ctx context.Context, id ids.MessageId) (*Message, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM messages WHERE id = $1`, int64(id))
	m, err := scanMessage(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *PGRepository) ListAfter(ctx context.Context, sessionID *ids.SessionId, recipientID ids.UserId, after ids.MessageId, limit int) ([]Message, error) {
	var rows pgx.Rows
	var err error
	if sessionID != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+selectColumns+` FROM messages
			 WHERE id > $1 AND session_id = $2
			 ORDER BY id ASC LIMIT $3`,
			int64(after), int64(*sessionID), limit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+selectColumns+` FROM messages
			 WHERE id > $1 AND (is_all_user = true OR recipient_id = $2)
			 ORDER BY id ASC LIMIT $3`,
			int64(after), int64(recipientID), limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ListForUser returns a recipient's full visible history across every
// session they belong to, plus their direct and broadcast messages,
// ordered ascending by id. This backs fetch_msgs's historical replay
// phase, which is not scoped to one session.
func (r *PGRepository) ListForUser(ctx context.Context, recipientID ids.UserId, sessionIDs []ids.SessionId, after ids.MessageId, limit int) ([]Message, error) {
	sids := make([]int64, len(sessionIDs))
	for i, sid := range sessionIDs {
		sids[i] = int64(sid)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+selectColumns+` FROM messages
		 WHERE id > $1 AND (is_all_user = true OR recipient_id = $2 OR session_id = ANY($3))
		 ORDER BY id ASC LIMIT $4`,
		int64(after), int64(recipientID), sids, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages for user: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *PGRepository) Recall(ctx context.Context, id ids.MessageId, requesterID ids.UserId, requesterIsAdmin bool) error {
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var senderID *int64
		var recalled bool
		err := tx.QueryRow(ctx, `SELECT sender_id, recalled FROM messages WHERE id = $1 FOR UPDATE`, int64(id)).Scan(&senderID, &recalled)
		if err != nil {
			if postgres.IsNoRows(err) {
				return ErrNotFound
			}
			return fmt.Errorf("lookup message for recall: %w", err)
		}
		if recalled {
			return ErrAlreadyRecalled
		}
		if !requesterIsAdmin && (senderID == nil || ids.UserId(*senderID) != requesterID) {
			return ErrNotSender
		}
		if _, err := tx.Exec(ctx, `UPDATE messages SET recalled = true WHERE id = $1`, int64(id)); err != nil {
			return fmt.Errorf("mark message recalled: %w", err)
		}
		return nil
	})
}
