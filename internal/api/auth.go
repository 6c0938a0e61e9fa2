package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/httputil"
	"github.com/ourchat/ourchat-server/internal/identity"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/service"
)

// AuthHandler serves account creation and login.
type AuthHandler struct {
	Accounts *service.AccountService
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Ocid     string `json:"ocid"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func authResultResponse(result *identity.AuthResult) fiber.Map {
	return fiber.Map{
		"user_id":      result.UserID,
		"access_token": result.AccessToken,
	}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var body registerRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}

	result, err := h.Accounts.Register(c.Context(), identity.RegisterRequest{
		Email:       body.Email,
		DisplayName: body.DisplayName,
		Password:    body.Password,
	})
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, authResultResponse(result))
}

// Login handles POST /api/v1/auth/login. Exactly one of ocid/email must be set.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body loginRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.CodeInvalidArgument, "invalid request body")
	}

	result, err := h.Accounts.Login(c.Context(), identity.LoginRequest{
		Ocid:     ids.Ocid(body.Ocid),
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		return httputil.FailErr(c, err)
	}
	return httputil.Success(c, authResultResponse(result))
}
