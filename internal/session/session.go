// Package session implements the Session Manager (membership, roles,
// mute/ban, and the E2EE room-key rotation state machine), generalizing the
// teacher's separate channel/member/role packages into one component scoped
// to a session rather than a server-wide channel list.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/ourchat/ourchat-server/internal/ids"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrMemberNotFound    = errors.New("member not found in session")
	ErrAlreadyMember     = errors.New("user is already a member of this session")
	ErrNameLength        = errors.New("session name must be between 1 and 64 characters")
	ErrNotE2EE           = errors.New("session is not end-to-end encrypted")
	ErrDisplayNameLength = errors.New("display name override must be between 1 and 64 characters")
)

// Session is the conversational container OurChat's messages, membership,
// and roles are all scoped to.
type Session struct {
	ID          ids.SessionId
	Name        string
	OwnerID     ids.UserId
	IsEncrypted bool
	PeopleNum   int // legacy capacity value, stored as given at create time
	CreatedAt   time.Time
	AvatarKey   *string
	Description *string
	UpdatedAt   time.Time

	// E2EE room-key epoch state, populated only when IsEncrypted is true.
	RoomKeyEpoch        int64
	RoomKeyEpochStarted time.Time
	LeavingToProcess    bool
}

// InfoUpdate carries the optional fields set_session_info may change; a nil
// field leaves the corresponding column untouched.
type InfoUpdate struct {
	Name        *string
	AvatarKey   *string
	Description *string
}

// Member is a user's membership record within a session.
type Member struct {
	SessionID       ids.SessionId
	UserID          ids.UserId
	DisplayName     *string // per-session display-name override
	JoinedAt        time.Time
	Muted           bool
	MutedUntil      *time.Time
	Banned          bool
}

// CreateParams groups the inputs for creating a new session. PeopleNum is
// stored in the session row as given; it does not select a different
// create path, and MemberIDs are added whatever its value.
type CreateParams struct {
	Name        string
	OwnerID     ids.UserId
	IsEncrypted bool
	MemberIDs   []ids.UserId
	PeopleNum   int
}

// ValidateName checks the session display name length.
func ValidateName(name string) error {
	if len(name) < 1 || len(name) > 64 {
		return ErrNameLength
	}
	return nil
}

// Repository is the durable-store contract for sessions and their membership/role rows.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (ids.SessionId, error)
	GetByID(ctx context.Context, id ids.SessionId) (*Session, error)
	Delete(ctx context.Context, id ids.SessionId) error
	SetInfo(ctx context.Context, id ids.SessionId, update InfoUpdate) error
	SetEncrypted(ctx context.Context, id ids.SessionId, on bool) error

	AddMember(ctx context.Context, sessionID ids.SessionId, userID ids.UserId) error
	RemoveMember(ctx context.Context, sessionID ids.SessionId, userID ids.UserId) error
	GetMember(ctx context.Context, sessionID ids.SessionId, userID ids.UserId) (*Member, error)
	ListMembers(ctx context.Context, sessionID ids.SessionId, after *ids.UserId, limit int) ([]Member, error)
	CountMembers(ctx context.Context, sessionID ids.SessionId) (int, error)
	// ListSessionsForUser returns every session a user currently belongs
	// to, used by fetch_msgs to replay history across all of a user's
	// sessions and to filter the live bus feed to sessions they're in.
	ListSessionsForUser(ctx context.Context, userID ids.UserId) ([]ids.SessionId, error)
	SetDisplayNameOverride(ctx context.Context, sessionID ids.SessionId, userID ids.UserId, name *string) error
	AssignRole(ctx context.Context, sessionID ids.SessionId, userID ids.UserId, roleID ids.RoleId) error
	RemoveRole(ctx context.Context, sessionID ids.SessionId, userID ids.UserId, roleID ids.RoleId) error

	BeginRoomKeyRotation(ctx context.Context, sessionID ids.SessionId) (epoch int64, err error)
	SetLeavingToProcess(ctx context.Context, sessionID ids.SessionId, flag bool) error
	CompleteRoomKeyRotation(ctx context.Context, sessionID ids.SessionId, epoch int64) error
}

const (
	// DefaultRoomKeyRotationTTL is the duration after which an E2EE
	// session's room key must rotate even with no membership changes.
	DefaultRoomKeyRotationTTL = 7 * 24 * time.Hour
)

// RoomKeyDue reports whether a session's E2EE room key needs to rotate: the
// rotation duration has elapsed, or a member left and left processing is
// still pending (per the E2EE key rotation state machine).
func RoomKeyDue(s *Session, rotationTTL time.Duration) bool {
	if !s.IsEncrypted {
		return false
	}
	if s.LeavingToProcess {
		return true
	}
	return time.Since(s.RoomKeyEpochStarted) >= rotationTTL
}
