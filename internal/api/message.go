package api

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/httputil"
	"github.com/ourchat/ourchat-server/internal/identity"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/message"
	"github.com/ourchat/ourchat-server/internal/service"
)

// MessageHandler serves send_msg / fetch_msgs (REST fallback) / recall_msg.
// Live delivery and the gapless replay-then-tail flow live in the gateway;
// this handler covers one-shot sends and a simple paginated fetch for
// clients that aren't holding a WebSocket connection.
type MessageHandler struct {
	messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type sendMessageRequest struct {
	SessionID   *int64                   `json:"session_id"`
	RecipientID *int64                   `json:"recipient_id"`
	Type        message.RespondEventType `json:"type"`
	Data        json.RawMessage          `json:"data"`
	IsEncrypted bool                     `json:"is_encrypted"`
}

// Send handles POST /api/v1/messages.
func (h *MessageHandler) Send(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}

	var body sendMessageRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}

	params := service.SendParams{
		SenderID:    userID,
		Type:        body.Type,
		Data:        body.Data,
		IsEncrypted: body.IsEncrypted,
	}
	if body.SessionID != nil {
		sid := ids.SessionId(*body.SessionID)
		params.SessionID = &sid
	}
	if body.RecipientID != nil {
		rid := ids.UserId(*body.RecipientID)
		params.RecipientID = &rid
	}

	msg, err := h.messages.Send(c.Context(), params)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, msg)
}

// Fetch handles GET /api/v1/messages. It replays a session's (or, absent a
// session_id, the caller's direct/broadcast) history after a cursor; a
// connected client should prefer the gateway's fetch_msgs instead, which
// additionally spans every session the caller belongs to and tails live.
func (h *MessageHandler) Fetch(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}

	var sessionID *ids.SessionId
	if raw := c.Query("session_id"); raw != "" {
		sid, err := ids.ParseSessionId(raw)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session_id")
		}
		sessionID = &sid
	}

	after := ids.MessageId(0)
	if raw := c.Query("after"); raw != "" {
		parsed, err := ids.ParseMessageId(raw)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid after cursor")
		}
		after = parsed
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, err := h.messages.Fetch(c.Context(), sessionID, userID, after, limit)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, msgs)
}

type recallRequest struct {
	MessageID int64 `json:"message_id"`
}

// Recall handles POST /api/v1/messages/recall.
func (h *MessageHandler) Recall(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}

	var body recallRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}

	if err := h.messages.Recall(c.Context(), userID, ids.MessageId(body.MessageID)); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
