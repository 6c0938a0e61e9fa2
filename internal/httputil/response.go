package httputil

import (
	"github.com/gofiber/fiber/v3"

	"github.com/ourchat/ourchat-server/internal/apierrors"
)

// SuccessResponse wraps successful API responses.
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorBody holds structured error details.
type ErrorBody struct {
	Code    apierrors.Code `json:"code"`
	Message string         `json:"message"`
}

// ErrorResponse wraps failed API responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Success sends a 200 JSON response with the given data.
func Success(c fiber.Ctx, data any) error {
	return c.JSON(SuccessResponse{Data: data})
}

// SuccessStatus sends a JSON response with a custom status code.
func SuccessStatus(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(SuccessResponse{Data: data})
}

// Fail sends a JSON error response with the given status, code, and message.
func Fail(c fiber.Ctx, status int, code apierrors.Code, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}

// FailErr sends a JSON error response derived from an *apierrors.Error,
// falling back to a 500 Internal response for anything else.
func FailErr(c fiber.Ctx, err error) error {
	if apiErr, ok := apierrors.As(err); ok {
		return Fail(c, apierrors.HTTPStatus(apiErr.Code), apiErr.Code, apiErr.Message)
	}
	return Fail(c, 500, apierrors.CodeInternal, "internal error")
}
