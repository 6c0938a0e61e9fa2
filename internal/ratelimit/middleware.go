package ratelimit

import (
	"github.com/gofiber/fiber/v3"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/ids"
)

// Middleware returns a fiber handler that admits a request only if the
// authenticated user (read from Locals under "userID") still has tokens
// left in its bucket.
func Middleware(limiter *Limiter) fiber.Handler {
	return func(c fiber.Ctx) error {
		userID, ok := c.Locals("userID").(ids.UserId)
		if !ok {
			return c.Next()
		}
		if !limiter.Allow(userID) {
			err := apierrors.New(apierrors.CodeResourceExhausted, "rate limit exceeded")
			return c.Status(apierrors.HTTPStatus(err.Code)).JSON(fiber.Map{"error": err.Message})
		}
		return c.Next()
	}
}

// MaintenanceMiddleware rejects traffic while maintenance mode is active,
// admitting a request only when Locals "is_server_admin" is true. No
// middleware in this repository sets that value, so while maintenance mode
// is on every request is rejected, server admins included.
func MaintenanceMiddleware(gate *AdmissionGate) fiber.Handler {
	return func(c fiber.Ctx) error {
		isAdmin, _ := c.Locals("is_server_admin").(bool)
		if !gate.Admit(isAdmin) {
			err := apierrors.New(apierrors.CodeFailedPrecondition, "server is in maintenance mode")
			return c.Status(apierrors.HTTPStatus(err.Code)).JSON(fiber.Map{"error": err.Message})
		}
		return c.Next()
	}
}
