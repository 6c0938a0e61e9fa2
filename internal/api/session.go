package api

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/httputil"
	"github.com/ourchat/ourchat-server/internal/identity"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/service"
	"github.com/ourchat/ourchat-server/internal/session"
)

// SessionHandler serves session creation, membership, moderation, role
// assignment, and E2EE room-key rotation.
type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type createSessionRequest struct {
	Name        string  `json:"name"`
	IsEncrypted bool    `json:"is_encrypted"`
	MemberIDs   []int64 `json:"member_ids"`
	PeopleNum   int     `json:"people_num"`
}

// Create handles POST /api/v1/sessions.
func (h *SessionHandler) Create(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}

	var body createSessionRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}

	memberIDs := make([]ids.UserId, len(body.MemberIDs))
	for i, id := range body.MemberIDs {
		memberIDs[i] = ids.UserId(id)
	}

	id, err := h.sessions.Create(c.Context(), session.CreateParams{
		Name:        body.Name,
		OwnerID:     userID,
		IsEncrypted: body.IsEncrypted,
		MemberIDs:   memberIDs,
		PeopleNum:   body.PeopleNum,
	})
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, fiber.Map{"session_id": id})
}

// Get handles GET /api/v1/sessions/:sessionID.
func (h *SessionHandler) Get(c fiber.Ctx) error {
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	sess, err := h.sessions.Get(c.Context(), sessionID)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, sess)
}

type memberActionRequest struct {
	UserID int64 `json:"user_id"`
}

// Invite handles POST /api/v1/sessions/:sessionID/members.
func (h *SessionHandler) Invite(c fiber.Ctx) error {
	requesterID, sessionID, body, resp, ok := h.memberActionInputs(c)
	if !ok {
		return resp
	}
	if err := h.sessions.Invite(c.Context(), requesterID, ids.UserId(body.UserID), sessionID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Kick handles DELETE /api/v1/sessions/:sessionID/members/:userID.
func (h *SessionHandler) Kick(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, userID, resp, ok2 := h.sessionAndUserParams(c)
	if !ok2 {
		return resp
	}
	if err := h.sessions.Kick(c.Context(), requesterID, userID, sessionID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Leave handles DELETE /api/v1/sessions/:sessionID/members/me: a member
// removing themselves (leave_session).
func (h *SessionHandler) Leave(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	if err := h.sessions.Leave(c.Context(), userID, sessionID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type moderateRequest struct {
	UserID          int64 `json:"user_id"`
	DurationSeconds int64 `json:"duration_seconds"`
}

// Mute handles POST /api/v1/sessions/:sessionID/mute.
func (h *SessionHandler) Mute(c fiber.Ctx) error {
	requesterID, sessionID, body, resp, ok := h.moderateInputs(c)
	if !ok {
		return resp
	}
	if err := h.sessions.Mute(c.Context(), requesterID, ids.UserId(body.UserID), sessionID, time.Duration(body.DurationSeconds)*time.Second); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Ban handles POST /api/v1/sessions/:sessionID/ban.
func (h *SessionHandler) Ban(c fiber.Ctx) error {
	requesterID, sessionID, body, resp, ok := h.moderateInputs(c)
	if !ok {
		return resp
	}
	if err := h.sessions.Ban(c.Context(), requesterID, ids.UserId(body.UserID), sessionID, time.Duration(body.DurationSeconds)*time.Second); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type assignRoleRequest struct {
	UserID int64 `json:"user_id"`
	RoleID int64 `json:"role_id"`
}

// Unmute handles DELETE /api/v1/sessions/:sessionID/mute/:userID.
func (h *SessionHandler) Unmute(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, userID, resp, ok2 := h.sessionAndUserParams(c)
	if !ok2 {
		return resp
	}
	if err := h.sessions.Unmute(c.Context(), requesterID, userID, sessionID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Unban handles DELETE /api/v1/sessions/:sessionID/ban/:userID.
func (h *SessionHandler) Unban(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, userID, resp, ok2 := h.sessionAndUserParams(c)
	if !ok2 {
		return resp
	}
	if err := h.sessions.Unban(c.Context(), requesterID, userID, sessionID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type setSessionInfoRequest struct {
	Name        *string `json:"name"`
	AvatarKey   *string `json:"avatar_key"`
	Description *string `json:"description"`
}

// SetInfo handles PATCH /api/v1/sessions/:sessionID.
func (h *SessionHandler) SetInfo(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	var body setSessionInfoRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}
	update := session.InfoUpdate{Name: body.Name, AvatarKey: body.AvatarKey, Description: body.Description}
	if err := h.sessions.SetInfo(c.Context(), requesterID, sessionID, update); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Delete handles DELETE /api/v1/sessions/:sessionID.
func (h *SessionHandler) Delete(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	if err := h.sessions.Delete(c.Context(), requesterID, sessionID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// E2EEize handles POST /api/v1/sessions/:sessionID/e2ee.
func (h *SessionHandler) E2EEize(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	if err := h.sessions.E2EEize(c.Context(), requesterID, sessionID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Dee2eeize handles DELETE /api/v1/sessions/:sessionID/e2ee.
func (h *SessionHandler) Dee2eeize(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	if err := h.sessions.Dee2eeize(c.Context(), requesterID, sessionID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type sendRoomKeyRequest struct {
	RecipientID      int64  `json:"recipient_id"`
	EncryptedRoomKey string `json:"room_key"`
}

// SendRoomKey handles POST /api/v1/sessions/:sessionID/room-key/send.
func (h *SessionHandler) SendRoomKey(c fiber.Ctx) error {
	senderID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	var body sendRoomKeyRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}
	if err := h.sessions.SendRoomKey(c.Context(), senderID, ids.UserId(body.RecipientID), sessionID, body.EncryptedRoomKey); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AssignRole handles POST /api/v1/sessions/:sessionID/roles/assign.
func (h *SessionHandler) AssignRole(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	var body assignRoleRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}
	if err := h.sessions.AssignRole(c.Context(), requesterID, ids.UserId(body.UserID), sessionID, ids.RoleId(body.RoleID)); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RotateRoomKey handles POST /api/v1/sessions/:sessionID/room-key/rotate.
func (h *SessionHandler) RotateRoomKey(c fiber.Ctx) error {
	requesterID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	epoch, err := h.sessions.RotateRoomKey(c.Context(), requesterID, sessionID)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, fiber.Map{"epoch": epoch})
}

// sessionAndUserParams parses the path parameters shared by moderation
// endpoints addressed by user id. ok is false once resp has already written
// an error response to c.
func (h *SessionHandler) sessionAndUserParams(c fiber.Ctx) (sessionID ids.SessionId, userID ids.UserId, resp error, ok bool) {
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return 0, 0, httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id"), false
	}
	userID, err = ids.ParseUserId(c.Params("userID"))
	if err != nil {
		return 0, 0, httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid user id"), false
	}
	return sessionID, userID, nil, true
}

func (h *SessionHandler) memberActionInputs(c fiber.Ctx) (requesterID ids.UserId, sessionID ids.SessionId, body memberActionRequest, resp error, ok bool) {
	requesterID, authOK := identity.UserIDFromContext(c)
	if !authOK {
		return 0, 0, memberActionRequest{}, httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity"), false
	}
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return 0, 0, memberActionRequest{}, httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id"), false
	}
	if err := c.Bind().Body(&body); err != nil {
		return 0, 0, memberActionRequest{}, httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body"), false
	}
	return requesterID, sessionID, body, nil, true
}

func (h *SessionHandler) moderateInputs(c fiber.Ctx) (requesterID ids.UserId, sessionID ids.SessionId, body moderateRequest, resp error, ok bool) {
	requesterID, authOK := identity.UserIDFromContext(c)
	if !authOK {
		return 0, 0, moderateRequest{}, httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity"), false
	}
	sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
	if err != nil {
		return 0, 0, moderateRequest{}, httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id"), false
	}
	if err := c.Bind().Body(&body); err != nil {
		return 0, 0, moderateRequest{}, httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body"), false
	}
	return requesterID, sessionID, body, nil, true
}
