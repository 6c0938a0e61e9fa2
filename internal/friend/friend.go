// Package friend implements friend invitations and the friend list, built on
// top of the Message Pipeline: an invitation is a normal message carrying
// message.EventFriendInvitation, and accepting it both records the
// friendship row and appends a message.EventFriendAccepted notice back to
// the inviter.
package friend

import (
	"context"
	"errors"
	"time"

	"github.com/ourchat/ourchat-server/internal/ids"
)

var (
	ErrAlreadyFriends     = errors.New("users are already friends")
	ErrSelfInvite         = errors.New("cannot send a friend invitation to yourself")
	ErrInvitationNotFound = errors.New("friend invitation not found")
	ErrNotInvitee         = errors.New("only the invitation recipient may accept or decline it")
	ErrAlreadyResolved    = errors.New("invitation has already been accepted or declined")
)

// InvitationStatus tracks the lifecycle of a single invitation row.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Invitation is the durable record backing a friend_invitation message. The
// MessageID links back to the Message Pipeline row that carried the
// invitation payload to the invitee.
type Invitation struct {
	ID         int64
	MessageID  ids.MessageId
	InviterID  ids.UserId
	InviteeID  ids.UserId
	Status     InvitationStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Friendship is one row of a bidirectional friend relationship, stored once
// per ordered pair (lesser user ID first) to avoid duplicate rows.
type Friendship struct {
	UserA     ids.UserId
	UserB     ids.UserId
	CreatedAt time.Time
}

// Pair returns the user IDs in canonical (lesser, greater) order so both
// directions of a relationship map to the same storage row.
func Pair(a, b ids.UserId) (ids.UserId, ids.UserId) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Repository is the durable-store contract for invitations and friendships.
type Repository interface {
	CreateInvitation(ctx context.Context, messageID ids.MessageId, inviterID, inviteeID ids.UserId) (*Invitation, error)
	GetInvitation(ctx context.Context, id int64) (*Invitation, error)
	ResolveInvitation(ctx context.Context, id int64, inviteeID ids.UserId, accept bool) (*Invitation, error)
	AreFriends(ctx context.Context, a, b ids.UserId) (bool, error)
	AddFriendship(ctx context.Context, a, b ids.UserId) error
	ListFriends(ctx context.Context, userID ids.UserId) ([]ids.UserId, error)
	RemoveFriendship(ctx context.Context, a, b ids.UserId) error
}
