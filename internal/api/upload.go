package api

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/httputil"
	"github.com/ourchat/ourchat-server/internal/identity"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/service"
)

// UploadHandler serves single-shot and chunked file upload, plus download.
type UploadHandler struct {
	uploads *service.UploadService
}

func NewUploadHandler(uploads *service.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// PutSingle handles POST /api/v1/files. The request body is the raw file
// content; content type, declared hash, auto-clean eligibility, and an
// optional session scope are taken from headers (X-Upload-Hash,
// X-Upload-Auto-Clean, X-Upload-Session-Id) since the body carries only
// the file bytes.
func (h *UploadHandler) PutSingle(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, err := parseOptionalSessionIDHeader(c.Get("X-Upload-Session-Id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id header")
	}
	f, err := h.uploads.PutSingle(c.Context(), userID, c.Get("Content-Type"), c.Get("X-Upload-Hash"), c.Get("X-Upload-Auto-Clean") == "true", sessionID, c.Body())
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, f)
}

type beginChunkedRequest struct {
	ContentType string `json:"content_type"`
	TotalSize   int64  `json:"total_size"`
	Hash        string `json:"hash"`
	AutoClean   bool   `json:"auto_clean"`
	SessionID   *int64 `json:"session_id"`
}

// BeginChunked handles POST /api/v1/files/chunked.
func (h *UploadHandler) BeginChunked(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	var body beginChunkedRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}
	var sessionID *ids.SessionId
	if body.SessionID != nil {
		sid := ids.SessionId(*body.SessionID)
		sessionID = &sid
	}
	session, err := h.uploads.BeginChunked(c.Context(), userID, body.ContentType, body.Hash, body.TotalSize, body.AutoClean, sessionID)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, session)
}

// parseOptionalSessionIDHeader parses an optional numeric session id header
// value, returning nil if raw is empty.
func parseOptionalSessionIDHeader(raw string) (*ids.SessionId, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	sid := ids.SessionId(v)
	return &sid, nil
}

// PutChunk handles PUT /api/v1/files/chunked/:sessionID/:index. The request
// body is the raw chunk bytes.
func (h *UploadHandler) PutChunk(c fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid chunk index")
	}
	session, err := h.uploads.PutChunk(c.Context(), sessionID, index, c.Body())
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, session)
}

// Complete handles POST /api/v1/files/chunked/:sessionID/complete.
func (h *UploadHandler) Complete(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	sessionID, err := uuid.Parse(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	f, err := h.uploads.Complete(c.Context(), userID, sessionID)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, f)
}

// Cancel handles DELETE /api/v1/files/chunked/:sessionID.
func (h *UploadHandler) Cancel(c fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("sessionID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid session id")
	}
	if err := h.uploads.Cancel(c.Context(), sessionID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Open handles GET /api/v1/files/:key, streaming the file's bytes back.
func (h *UploadHandler) Open(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	key := ids.FileKey(c.Params("key"))
	r, err := h.uploads.Open(c.Context(), key, userID)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	defer r.Close()

	c.Set("Content-Type", "application/octet-stream")
	return c.SendStream(r)
}
