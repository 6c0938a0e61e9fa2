// Package webrtcroom implements signalling coordination for voice/video
// rooms. All state here is ephemeral: rooms exist only while at least one
// participant is connected (or until auto_delete/TTL expiry), with a
// bounded member set, an admin set, and a pending-invitation set, all held
// in Valkey rather than Postgres.
package webrtcroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ourchat/ourchat-server/internal/ids"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotAdmin         = errors.New("only the room creator or an admin may perform this action")
	ErrCreatorOnly      = errors.New("only the room creator may perform this action")
	ErrNotInvited       = errors.New("user has not been invited to this room")
	ErrAlreadyMember    = errors.New("user is already a member of this room")
	ErrNotMember        = errors.New("not a member of this room")
	ErrSelfTarget       = errors.New("cannot target yourself for this action")
	ErrCannotTargetSelf = ErrSelfTarget
)

// SignalKind discriminates the payload relayed between peers.
type SignalKind string

const (
	SignalOffer  SignalKind = "offer"
	SignalAnswer SignalKind = "answer"
	SignalICE    SignalKind = "ice_candidate"
)

// Signal is a single relayed SDP/ICE message, addressed from one
// participant to another within the same room.
type Signal struct {
	RoomID ids.RoomId      `json:"room_id"`
	From   ids.UserId      `json:"from"`
	To     ids.UserId      `json:"to"`
	Kind   SignalKind      `json:"kind"`
	Body   json.RawMessage `json:"body"`
}

// ValidateSignal enforces that Offer/Answer carry a non-empty SDP body and
// IceCandidate carries a non-empty candidate, matching the create_room
// signalling contract's edge-case table.
func ValidateSignal(kind SignalKind, body json.RawMessage) error {
	switch kind {
	case SignalOffer, SignalAnswer, SignalICE:
	default:
		return fmt.Errorf("unrecognized signal kind %q", kind)
	}
	if len(body) == 0 || string(body) == "null" {
		return fmt.Errorf("signal body must not be empty")
	}
	return nil
}

// Room is the ephemeral state for one active call.
type Room struct {
	ID         ids.RoomId
	CreatorID  ids.UserId
	Title      string
	OpenJoin   bool
	AutoDelete bool
	Members    []ids.UserId
	Admins     []ids.UserId
	Invitees   []ids.UserId
	UsersNum   int
	CreatedAt  time.Time
}

// Store manages room lifecycle and membership in Valkey.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func roomKey(id ids.RoomId) string     { return fmt.Sprintf("room:%d", id) }
func membersKey(id ids.RoomId) string  { return fmt.Sprintf("room:%d:members", id) }
func adminsKey(id ids.RoomId) string   { return fmt.Sprintf("room:%d:admins", id) }
func invitesKey(id ids.RoomId) string  { return fmt.Sprintf("room:%d:invitations", id) }

type roomData struct {
	CreatorID  int64  `json:"creator_id"`
	Title      string `json:"title"`
	OpenJoin   bool   `json:"open_join"`
	AutoDelete bool   `json:"auto_delete"`
	UsersNum   int    `json:"users_num"`
	CreatedAt  int64  `json:"created_at"`
}

// Create opens a new room, seeding the creator into both members and
// admins with users_num=0 until the creator (or anyone else) formally
// joins, per the spec's join-counts-everyone-including-creator rule.
func (s *Store) Create(ctx context.Context, id ids.RoomId, creatorID ids.UserId, title string, openJoin, autoDelete bool) (*Room, error) {
	data, err := json.Marshal(roomData{CreatorID: int64(creatorID), Title: title, OpenJoin: openJoin, AutoDelete: autoDelete, CreatedAt: time.Now().Unix()})
	if err != nil {
		return nil, fmt.Errorf("marshal room: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, roomKey(id), data, s.ttl)
	pipe.SAdd(ctx, membersKey(id), int64(creatorID))
	pipe.Expire(ctx, membersKey(id), s.ttl)
	pipe.SAdd(ctx, adminsKey(id), int64(creatorID))
	pipe.Expire(ctx, adminsKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return s.Get(ctx, id)
}

func readIntSet(ctx context.Context, rdb *redis.Client, key string) ([]ids.UserId, error) {
	strs, err := rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ids.UserId, 0, len(strs))
	for _, m := range strs {
		var v int64
		if _, err := fmt.Sscanf(m, "%d", &v); err == nil {
			out = append(out, ids.UserId(v))
		}
	}
	return out, nil
}

// Get loads a room's current state, or ErrRoomNotFound if it does not
// exist or has expired.
func (s *Store) Get(ctx context.Context, id ids.RoomId) (*Room, error) {
	raw, err := s.rdb.Get(ctx, roomKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("load room: %w", err)
	}
	var rd roomData
	if err := json.Unmarshal(raw, &rd); err != nil {
		return nil, fmt.Errorf("unmarshal room: %w", err)
	}

	members, err := readIntSet(ctx, s.rdb, membersKey(id))
	if err != nil {
		return nil, fmt.Errorf("list room members: %w", err)
	}
	admins, err := readIntSet(ctx, s.rdb, adminsKey(id))
	if err != nil {
		return nil, fmt.Errorf("list room admins: %w", err)
	}
	invitees, err := readIntSet(ctx, s.rdb, invitesKey(id))
	if err != nil {
		return nil, fmt.Errorf("list room invitees: %w", err)
	}

	return &Room{
		ID:         id,
		CreatorID:  ids.UserId(rd.CreatorID),
		Title:      rd.Title,
		OpenJoin:   rd.OpenJoin,
		AutoDelete: rd.AutoDelete,
		Members:    members,
		Admins:     admins,
		Invitees:   invitees,
		UsersNum:   rd.UsersNum,
		CreatedAt:  time.Unix(rd.CreatedAt, 0),
	}, nil
}

func contains(list []ids.UserId, id ids.UserId) bool {
	for _, m := range list {
		if m == id {
			return true
		}
	}
	return false
}

func (s *Store) setUsersNum(ctx context.Context, room *Room, delta int) error {
	data, err := json.Marshal(roomData{
		CreatorID: int64(room.CreatorID), Title: room.Title, OpenJoin: room.OpenJoin,
		AutoDelete: room.AutoDelete, UsersNum: room.UsersNum + delta, CreatedAt: room.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	return s.rdb.Set(ctx, roomKey(room.ID), data, s.ttl).Err()
}

// Invite adds userID to the pending-invitation set, provided requesterID
// is the creator or an admin and userID is neither already a member nor
// already invited.
func (s *Store) Invite(ctx context.Context, id ids.RoomId, requesterID, userID ids.UserId) error {
	room, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !contains(room.Admins, requesterID) {
		return ErrNotAdmin
	}
	if contains(room.Members, userID) {
		return ErrAlreadyMember
	}
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, invitesKey(id), int64(userID))
	pipe.Expire(ctx, invitesKey(id), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// AcceptInvitation moves the caller from invitees to members, incrementing
// users_num. The caller must currently be in the invitation set.
func (s *Store) AcceptInvitation(ctx context.Context, id ids.RoomId, userID ids.UserId) (*Room, error) {
	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !contains(room.Invitees, userID) {
		return nil, ErrNotInvited
	}
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, invitesKey(id), int64(userID))
	pipe.SAdd(ctx, membersKey(id), int64(userID))
	pipe.Expire(ctx, membersKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("accept room invitation: %w", err)
	}
	if err := s.setUsersNum(ctx, room, 1); err != nil {
		return nil, fmt.Errorf("update users_num: %w", err)
	}
	return s.Get(ctx, id)
}

// Join adds userID to a room's member set: open rooms accept any caller,
// gated rooms require prior invitation. Joining twice is a no-op that
// leaves users_num unchanged.
func (s *Store) Join(ctx context.Context, id ids.RoomId, userID ids.UserId) (*Room, error) {
	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if contains(room.Members, userID) {
		// The creator is seeded into members at create time but is counted
		// in users_num only on their first join.
		if userID == room.CreatorID && room.UsersNum < len(room.Members) {
			if err := s.setUsersNum(ctx, room, 1); err != nil {
				return nil, fmt.Errorf("update users_num: %w", err)
			}
			return s.Get(ctx, id)
		}
		return room, nil
	}
	if !room.OpenJoin {
		if !contains(room.Invitees, userID) {
			return nil, ErrNotInvited
		}
	}
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, membersKey(id), int64(userID))
	pipe.Expire(ctx, membersKey(id), s.ttl)
	pipe.SRem(ctx, invitesKey(id), int64(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	if err := s.setUsersNum(ctx, room, 1); err != nil {
		return nil, fmt.Errorf("update users_num: %w", err)
	}
	return s.Get(ctx, id)
}

// Leave removes userID from both members and admins. It is idempotent; if
// auto_delete is set and the room becomes empty, its entire state is torn
// down.
func (s *Store) Leave(ctx context.Context, id ids.RoomId, userID ids.UserId) error {
	room, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	wasMember := contains(room.Members, userID)
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, membersKey(id), int64(userID))
	pipe.SRem(ctx, adminsKey(id), int64(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	if wasMember {
		if err := s.setUsersNum(ctx, room, -1); err != nil {
			return fmt.Errorf("update users_num: %w", err)
		}
	}
	remaining, err := s.rdb.SCard(ctx, membersKey(id)).Result()
	if err != nil {
		return fmt.Errorf("count remaining members: %w", err)
	}
	if remaining == 0 && room.AutoDelete {
		return s.Destroy(ctx, id)
	}
	return nil
}

// PromoteAdmin grants admin status to a member, provided requesterID is
// the creator or an existing admin and userID is already a member.
func (s *Store) PromoteAdmin(ctx context.Context, id ids.RoomId, requesterID, userID ids.UserId) error {
	room, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !contains(room.Admins, requesterID) {
		return ErrNotAdmin
	}
	if !contains(room.Members, userID) {
		return ErrNotMember
	}
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, adminsKey(id), int64(userID))
	pipe.Expire(ctx, adminsKey(id), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// DemoteAdmin revokes admin status from a member. Only the room creator
// may demote, and the creator itself can never be demoted.
func (s *Store) DemoteAdmin(ctx context.Context, id ids.RoomId, requesterID, userID ids.UserId) error {
	room, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if room.CreatorID != requesterID {
		return ErrCreatorOnly
	}
	if userID == room.CreatorID {
		return ErrSelfTarget
	}
	return s.rdb.SRem(ctx, adminsKey(id), int64(userID)).Err()
}

// KickUser removes userID from both members and admins, provided
// requesterID is the creator or an admin. Self-kick and kicking the
// creator are rejected.
func (s *Store) KickUser(ctx context.Context, id ids.RoomId, requesterID, userID ids.UserId) error {
	if requesterID == userID {
		return ErrSelfTarget
	}
	room, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if userID == room.CreatorID {
		return ErrSelfTarget
	}
	if !contains(room.Admins, requesterID) {
		return ErrNotAdmin
	}
	wasMember := contains(room.Members, userID)
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, membersKey(id), int64(userID))
	pipe.SRem(ctx, adminsKey(id), int64(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kick user from room: %w", err)
	}
	if wasMember {
		if err := s.setUsersNum(ctx, room, -1); err != nil {
			return fmt.Errorf("update users_num: %w", err)
		}
	}
	return nil
}

// GetMembers returns a room's current member list, provided requesterID is
// itself a member.
func (s *Store) GetMembers(ctx context.Context, id ids.RoomId, requesterID ids.UserId) ([]ids.UserId, error) {
	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !contains(room.Members, requesterID) {
		return nil, ErrNotMember
	}
	return room.Members, nil
}

// Destroy tears down a room's entire ephemeral state.
func (s *Store) Destroy(ctx context.Context, id ids.RoomId) error {
	if err := s.rdb.Del(ctx, roomKey(id), membersKey(id), adminsKey(id), invitesKey(id)).Err(); err != nil {
		return fmt.Errorf("destroy room: %w", err)
	}
	return nil
}
