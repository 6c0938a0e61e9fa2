package identity

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/httputil"
	"github.com/ourchat/ourchat-server/internal/ids"
)

// RequireAuth returns Fiber middleware that validates a JWT bearer token
// from the Authorization header (or, for older clients, a bare "token"
// header) and stores the caller's user id in c.Locals("userID").
func RequireAuth(secret, issuer string) fiber.Handler {
	return func(c fiber.Ctx) error {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			return httputil.Fail(c, apierrors.HTTPStatus(apierrors.CodeUnauthenticated), apierrors.CodeUnauthenticated, "missing authorization")
		}

		claims, err := ValidateAccessToken(tokenStr, secret, issuer)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrTokenExpired) {
				msg = "token has expired"
			}
			return httputil.Fail(c, apierrors.HTTPStatus(apierrors.CodeUnauthenticated), apierrors.CodeUnauthenticated, msg)
		}

		userID, err := ids.ParseUserId(claims.Subject)
		if err != nil {
			return httputil.Fail(c, apierrors.HTTPStatus(apierrors.CodeUnauthenticated), apierrors.CodeUnauthenticated, "invalid token subject")
		}

		c.Locals("userID", userID)
		return c.Next()
	}
}

func bearerToken(c fiber.Ctx) string {
	if h := c.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if h := c.Get("token"); h != "" {
		return h
	}
	return ""
}

// UserIDFromContext extracts the authenticated caller's id, set by RequireAuth.
func UserIDFromContext(c fiber.Ctx) (ids.UserId, bool) {
	id, ok := c.Locals("userID").(ids.UserId)
	return id, ok
}
