package api

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/httputil"
	"github.com/ourchat/ourchat-server/internal/identity"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/service"
	"github.com/ourchat/ourchat-server/internal/user"
)

// AccountHandler serves profile reads/updates and account deactivation.
type AccountHandler struct {
	accounts *service.AccountService
}

func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Get handles GET /api/v1/users/:userID. When an ids query parameter is
// present (comma-separated user ids), it returns those users instead and
// :userID is not read.
func (h *AccountHandler) Get(c fiber.Ctx) error {
	if raw := c.Query("ids"); raw != "" {
		parts := strings.Split(raw, ",")
		userIDs := make([]ids.UserId, 0, len(parts))
		for _, p := range parts {
			id, err := ids.ParseUserId(strings.TrimSpace(p))
			if err != nil {
				return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid ids parameter")
			}
			userIDs = append(userIDs, id)
		}
		users, err := h.accounts.GetAccountInfoBatch(c.Context(), userIDs)
		if err != nil {
			return httputil.FailErr(c, err)
		}
		return httputil.Success(c, users)
	}

	userID, err := ids.ParseUserId(c.Params("userID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid user id")
	}
	u, err := h.accounts.GetAccountInfo(c.Context(), userID)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, u)
}

// Me handles GET /api/v1/users/me.
func (h *AccountHandler) Me(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	u, err := h.accounts.GetAccountInfo(c.Context(), userID)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, u)
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	AvatarKey   *string `json:"avatar_key"`
	PublicKey   *string `json:"public_key"`
}

// UpdateProfile handles PATCH /api/v1/users/me.
func (h *AccountHandler) UpdateProfile(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}

	var body updateProfileRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}

	u, err := h.accounts.UpdateProfile(c.Context(), userID, user.UpdateParams{
		DisplayName: body.DisplayName,
		AvatarKey:   body.AvatarKey,
		PublicKey:   body.PublicKey,
	})
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, u)
}

type deactivateRequest struct {
	Password string `json:"password"`
}

// Deactivate handles DELETE /api/v1/users/me.
func (h *AccountHandler) Deactivate(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}

	var body deactivateRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}

	if err := h.accounts.Deactivate(c.Context(), userID, body.Password); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// FriendHandler serves invite_friend / accept_friend_invitation and the
// friend list.
type FriendHandler struct {
	friends *service.FriendService
}

func NewFriendHandler(friends *service.FriendService) *FriendHandler {
	return &FriendHandler{friends: friends}
}

type inviteFriendRequest struct {
	UserID int64 `json:"user_id"`
}

// Invite handles POST /api/v1/friends/invitations.
func (h *FriendHandler) Invite(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}

	var body inviteFriendRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}

	inv, err := h.friends.Invite(c.Context(), userID, ids.UserId(body.UserID))
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, inv)
}

type resolveFriendInvitationRequest struct {
	Accept bool `json:"accept"`
}

// Resolve handles POST /api/v1/friends/invitations/:invitationID.
func (h *FriendHandler) Resolve(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}

	invitationID, err := strconv.ParseInt(c.Params("invitationID"), 10, 64)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid invitation id")
	}

	var body resolveFriendInvitationRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}

	inv, err := h.friends.Resolve(c.Context(), invitationID, userID, body.Accept)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, inv)
}

// List handles GET /api/v1/friends.
func (h *FriendHandler) List(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	friends, err := h.friends.List(c.Context(), userID)
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, friends)
}

// Remove handles DELETE /api/v1/friends/:userID.
func (h *FriendHandler) Remove(c fiber.Ctx) error {
	userID, ok := identity.UserIDFromContext(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.CodeUnauthenticated, "missing user identity")
	}
	friendID, err := ids.ParseUserId(c.Params("userID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid user id")
	}
	if err := h.friends.Remove(c.Context(), userID, friendID); err != nil {
		return httputil.FailErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
