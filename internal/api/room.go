package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/httputil"
	"github.com/ourchat/ourchat-server/internal/identity"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/service"
	"github.com/ourchat/ourchat-server/internal/webrtcroom"
)

// RoomHandler serves the WebRTC room coordinator: create, invite/accept,
// open-join, admin promote/demote/kick, membership reads, and signal
// relay.
type RoomHandler struct {
	rooms *service.RoomService
}

func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

type createRoomRequest struct {
	Title      string `json:"title"`
	OpenJoin   bool   `json:"open_join"`
	AutoDelete bool   `json:"auto_delete"`
}

// Create handles POST /api/v1/rooms.
func (h *RoomHandler) Create(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	var body createRoomRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}
	room, err := h.rooms.Create(c.Context(), userID, body.Title, body.OpenJoin, body.AutoDelete)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, room)
}

func (h *RoomHandler) roomID(c fiber.Ctx) (ids.RoomId, error) {
	return ids.ParseRoomId(c.Params("roomID"))
}

// Invite handles POST /api/v1/rooms/:roomID/invitations.
func (h *RoomHandler) Invite(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	roomID, err := h.roomID(c)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid room id")
	}
	var body memberActionRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}
	if err := h.rooms.Invite(c.Context(), userID, ids.UserId(body.UserID), roomID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AcceptInvitation handles POST /api/v1/rooms/:roomID/invitations/accept.
func (h *RoomHandler) AcceptInvitation(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	roomID, err := h.roomID(c)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid room id")
	}
	room, err := h.rooms.AcceptInvitation(c.Context(), userID, roomID)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, room)
}

// Join handles POST /api/v1/rooms/:roomID/members (open-join or
// already-invited entry).
func (h *RoomHandler) Join(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	roomID, err := h.roomID(c)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid room id")
	}
	room, err := h.rooms.Join(c.Context(), userID, roomID)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, room)
}

// Leave handles DELETE /api/v1/rooms/:roomID/members/me.
func (h *RoomHandler) Leave(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	roomID, err := h.roomID(c)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid room id")
	}
	if err := h.rooms.Leave(c.Context(), userID, roomID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PromoteAdmin handles POST /api/v1/rooms/:roomID/admins.
func (h *RoomHandler) PromoteAdmin(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	roomID, err := h.roomID(c)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid room id")
	}
	var body memberActionRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}
	if err := h.rooms.PromoteAdmin(c.Context(), requesterID, ids.UserId(body.UserID), roomID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DemoteAdmin handles DELETE /api/v1/rooms/:roomID/admins/:userID.
func (h *RoomHandler) DemoteAdmin(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	roomID, userID, resp, ok2 := h.roomAndUserParams(c)
	if !ok2 {
		return resp
	}
	if err := h.rooms.DemoteAdmin(c.Context(), requesterID, userID, roomID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// KickUser handles DELETE /api/v1/rooms/:roomID/members/:userID.
func (h *RoomHandler) KickUser(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	roomID, userID, resp, ok2 := h.roomAndUserParams(c)
	if !ok2 {
		return resp
	}
	if err := h.rooms.KickUser(c.Context(), requesterID, userID, roomID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMembers handles GET /api/v1/rooms/:roomID/members.
func (h *RoomHandler) GetMembers(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	roomID, err := h.roomID(c)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid room id")
	}
	members, err := h.rooms.GetMembers(c.Context(), requesterID, roomID)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, fiber.Map{"members": members})
}

func (h *RoomHandler) roomAndUserParams(c fiber.Ctx) (roomID ids.RoomId, userID ids.UserId, resp error, ok bool) {
	roomID, err := h.roomID(c)
	if err != nil {
		return 0, 0, httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid room id"), false
	}
	userID, err = ids.ParseUserId(c.Params("userID"))
	if err != nil {
		return 0, 0, httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid user id"), false
	}
	return roomID, userID, nil, true
}

type signalRequest struct {
	RoomID int64                 `json:"room_id"`
	To     int64                 `json:"to"`
	Kind   webrtcroom.SignalKind `json:"kind"`
	Body   []byte                `json:"body"`
}

// Signal handles POST /api/v1/webrtc/signal: validates the SDP/ICE payload
// shape for offer/answer/ice_candidate signals and relays the message to
// its target over the bus; the gateway forwards it to the target's live
// connection as a relayed dispatch frame.
func (h *RoomHandler) Signal(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	var body signalRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}
	signal := webrtcroom.Signal{
		RoomID: ids.RoomId(body.RoomID),
		From:   userID,
		To:     ids.UserId(body.To),
		Kind:   body.Kind,
		Body:   body.Body,
	}
	if err := h.rooms.Signal(c.Context(), signal); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
