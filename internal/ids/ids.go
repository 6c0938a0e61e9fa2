// Package ids defines the opaque identifier newtypes shared across every
// component, keeping a UserId from being passed where a SessionId belongs
// even though both are, underneath, int64 snowflakes.
package ids

import "strconv"

type UserId int64
type SessionId int64
type MessageId int64
type RoomId int64
type RoleId int64
type PermissionId int64

func (id UserId) String() string       { return strconv.FormatInt(int64(id), 10) }
func (id SessionId) String() string    { return strconv.FormatInt(int64(id), 10) }
func (id MessageId) String() string    { return strconv.FormatInt(int64(id), 10) }
func (id RoomId) String() string       { return strconv.FormatInt(int64(id), 10) }
func (id RoleId) String() string       { return strconv.FormatInt(int64(id), 10) }
func (id PermissionId) String() string { return strconv.FormatInt(int64(id), 10) }

func ParseUserId(s string) (UserId, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return UserId(v), err
}

func ParseSessionId(s string) (SessionId, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return SessionId(v), err
}

func ParseMessageId(s string) (MessageId, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return MessageId(v), err
}

func ParseRoomId(s string) (RoomId, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return RoomId(v), err
}

// Predefined role ids, matching the three built-in roles every session is
// seeded with: Member, Admin, Owner.
const (
	RoleMember RoleId = 1
	RoleAdmin  RoleId = 2
	RoleOwner  RoleId = 3
)
