// Package message implements the Message Pipeline's durable store: the
// append-only log send_msg writes to and fetch_msgs reads back, generalized
// from the teacher's single-shot text-content model to an opaque,
// discriminated JSON payload so the same table can carry chat text, friend
// invitations, E2EE key-rotation events, and system notices alike.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ourchat/ourchat-server/internal/ids"
)

var (
	ErrNotFound        = errors.New("message not found")
	ErrEmptyPayload    = errors.New("message payload must not be empty")
	ErrAlreadyRecalled = errors.New("message has already been recalled")
	ErrNotSender       = errors.New("only the sender may recall this message")
)

// RespondEventType discriminates the kind of payload carried in Data.
type RespondEventType string

const (
	EventNewMessage       RespondEventType = "new_message"
	EventFriendInvitation RespondEventType = "friend_invitation"
	EventFriendAccepted   RespondEventType = "friend_accepted"
	EventRoomKeyUpdate    RespondEventType = "update_room_key"
	EventRoomKeySend      RespondEventType = "send_room_key"
	EventRoomKeyReceive   RespondEventType = "receive_room_key"
	EventSystemNotice     RespondEventType = "system_notice"
	EventRecall           RespondEventType = "recall"
)

// Message is one row of the durable, append-only log. SenderID and
// SessionID are nullable: a system notice or a direct friend invitation may
// have no originating session.
type Message struct {
	ID          ids.MessageId
	Type        RespondEventType
	Data        json.RawMessage
	SenderID    *ids.UserId
	SessionID   *ids.SessionId
	RecipientID *ids.UserId // set for a direct message (friend invites, key events); nil for session/broadcast messages
	IsEncrypted bool
	IsAllUser   bool // broadcast to every live connection, bypassing per-recipient routing
	Recalled    bool
	CreatedAt   time.Time
}

// CreateParams groups the inputs for appending a new message.
type CreateParams struct {
	Type        RespondEventType
	Data        json.RawMessage
	SenderID    *ids.UserId
	SessionID   *ids.SessionId
	RecipientID *ids.UserId
	IsEncrypted bool
	IsAllUser   bool
}

// ValidatePayload checks that Data is non-empty and syntactically valid JSON.
func ValidatePayload(data json.RawMessage) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	if !json.Valid(data) {
		return ErrEmptyPayload
	}
	return nil
}

const (
	DefaultFetchLimit = 2000
	MaxFetchLimit     = 5000
)

// ClampLimit normalizes a caller-supplied fetch size to [1, MaxFetchLimit],
// substituting DefaultFetchLimit for a non-positive value.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultFetchLimit
	}
	if limit > MaxFetchLimit {
		return MaxFetchLimit
	}
	return limit
}

// Repository is the durable-store contract for messages.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Message, error)
	GetByID(ctx context.Context, id ids.MessageId) (*Message, error)
	// ListAfter returns up to limit messages with id > after, ordered
	// ascending, restricted to the given session (or to IsAllUser messages
	// and the given recipient's direct messages when sessionID is nil).
	ListAfter(ctx context.Context, sessionID *ids.SessionId, recipientID ids.UserId, after ids.MessageId, limit int) ([]Message, error)
	// ListForUser returns up to limit messages with id > after, ordered
	// ascending, visible to recipientID across every one of their sessions
	// plus their direct and broadcast messages. Used by fetch_msgs to
	// replay a user's full history in one paginated cursor.
	ListForUser(ctx context.Context, recipientID ids.UserId, sessionIDs []ids.SessionId, after ids.MessageId, limit int) ([]Message, error)
	Recall(ctx context.Context, id ids.MessageId, requesterID ids.UserId, requesterIsAdmin bool) error
}
