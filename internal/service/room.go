package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/bus"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/snowflake"
	"github.com/ourchat/ourchat-server/internal/webrtcroom"
)

// RoomService implements the WebRTC room coordinator: ephemeral call rooms
// with creator/admin/member/invitation sets and SDP/ICE relay over the
// bus. Unlike sessions, rooms carry no RBAC permission check beyond the
// creator/admin distinction baked into the room itself.
type RoomService struct {
	rooms     *webrtcroom.Store
	gen       *snowflake.Generator
	publisher *bus.Publisher
	log       zerolog.Logger
}

func NewRoomService(rooms *webrtcroom.Store, gen *snowflake.Generator, publisher *bus.Publisher, logger zerolog.Logger) *RoomService {
	return &RoomService{rooms: rooms, gen: gen, publisher: publisher, log: logger}
}

// Create opens a new room with the caller as creator, sole admin, and
// first member-to-be (users_num starts at 0 until an explicit join).
func (s *RoomService) Create(ctx context.Context, creatorID ids.UserId, title string, openJoin, autoDelete bool) (*webrtcroom.Room, error) {
	roomID := s.gen.NextRoomId()
	room, err := s.rooms.Create(ctx, roomID, creatorID, title, openJoin, autoDelete)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "create room", err)
	}
	return room, nil
}

// Invite lets a creator-or-admin invite a user to a gated room.
func (s *RoomService) Invite(ctx context.Context, requesterID, userID ids.UserId, roomID ids.RoomId) error {
	if err := s.rooms.Invite(ctx, roomID, requesterID, userID); err != nil {
		return mapRoomErr(err)
	}
	return nil
}

// AcceptInvitation resolves a pending invitation into membership.
func (s *RoomService) AcceptInvitation(ctx context.Context, userID ids.UserId, roomID ids.RoomId) (*webrtcroom.Room, error) {
	room, err := s.rooms.AcceptInvitation(ctx, roomID, userID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	return room, nil
}

// Join handles open-join or pre-invited entry into a room.
func (s *RoomService) Join(ctx context.Context, userID ids.UserId, roomID ids.RoomId) (*webrtcroom.Room, error) {
	room, err := s.rooms.Join(ctx, roomID, userID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	return room, nil
}

// Leave removes the caller from a room, tearing it down if it becomes
// empty and auto_delete is set.
func (s *RoomService) Leave(ctx context.Context, userID ids.UserId, roomID ids.RoomId) error {
	if err := s.rooms.Leave(ctx, roomID, userID); err != nil {
		return mapRoomErr(err)
	}
	return nil
}

// PromoteAdmin grants admin status to a member.
func (s *RoomService) PromoteAdmin(ctx context.Context, requesterID, userID ids.UserId, roomID ids.RoomId) error {
	if err := s.rooms.PromoteAdmin(ctx, roomID, requesterID, userID); err != nil {
		return mapRoomErr(err)
	}
	return nil
}

// DemoteAdmin revokes admin status; only the creator may call this.
func (s *RoomService) DemoteAdmin(ctx context.Context, requesterID, userID ids.UserId, roomID ids.RoomId) error {
	if err := s.rooms.DemoteAdmin(ctx, roomID, requesterID, userID); err != nil {
		return mapRoomErr(err)
	}
	return nil
}

// KickUser removes a member from a room.
func (s *RoomService) KickUser(ctx context.Context, requesterID, userID ids.UserId, roomID ids.RoomId) error {
	if err := s.rooms.KickUser(ctx, roomID, requesterID, userID); err != nil {
		return mapRoomErr(err)
	}
	return nil
}

// GetMembers returns a room's member list to a requesting member.
func (s *RoomService) GetMembers(ctx context.Context, requesterID ids.UserId, roomID ids.RoomId) ([]ids.UserId, error) {
	members, err := s.rooms.GetMembers(ctx, roomID, requesterID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	return members, nil
}

// Signal validates and relays one SDP/ICE message to its addressed
// recipient over the bus as a direct event, provided both parties are
// room members.
func (s *RoomService) Signal(ctx context.Context, signal webrtcroom.Signal) error {
	if err := webrtcroom.ValidateSignal(signal.Kind, signal.Body); err != nil {
		return apierrors.Wrap(apierrors.CodeInvalidArgument, err.Error(), err)
	}
	room, err := s.rooms.Get(ctx, signal.RoomID)
	if err != nil {
		return mapRoomErr(err)
	}
	if !memberOf(room, signal.From) {
		return apierrors.New(apierrors.CodePermissionDenied, "not a member of this room")
	}
	if !memberOf(room, signal.To) {
		return apierrors.New(apierrors.CodeNotFound, "target is not a member of this room")
	}

	data, err := json.Marshal(signal)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "marshal signal", err)
	}
	recipient := int64(signal.To)
	if err := s.publisher.Publish(ctx, bus.Envelope{Type: "webrtc_signal", Data: data, RecipientID: &recipient}); err != nil {
		s.log.Error().Err(err).Msg("failed to relay webrtc signal")
		return apierrors.Wrap(apierrors.CodeInternal, "relay signal", err)
	}
	return nil
}

func memberOf(room *webrtcroom.Room, userID ids.UserId) bool {
	for _, m := range room.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func mapRoomErr(err error) error {
	switch err {
	case webrtcroom.ErrRoomNotFound:
		return apierrors.Wrap(apierrors.CodeNotFound, err.Error(), err)
	case webrtcroom.ErrNotAdmin, webrtcroom.ErrCreatorOnly:
		return apierrors.Wrap(apierrors.CodePermissionDenied, err.Error(), err)
	case webrtcroom.ErrNotInvited:
		return apierrors.Wrap(apierrors.CodePermissionDenied, err.Error(), err)
	case webrtcroom.ErrAlreadyMember:
		return apierrors.Wrap(apierrors.CodeAlreadyExists, err.Error(), err)
	case webrtcroom.ErrNotMember:
		return apierrors.Wrap(apierrors.CodeNotFound, err.Error(), err)
	case webrtcroom.ErrSelfTarget:
		return apierrors.Wrap(apierrors.CodeInvalidArgument, err.Error(), err)
	default:
		return apierrors.Wrap(apierrors.CodeInternal, "room operation failed", err)
	}
}
