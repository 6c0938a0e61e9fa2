package rbac

import (
	"github.com/gofiber/fiber/v3"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/httputil"
	"github.com/ourchat/ourchat-server/internal/ids"
)

// RequirePermission returns Fiber middleware that checks whether the
// authenticated user has the given permission in the session specified by
// the "sessionID" route parameter.
func RequirePermission(resolver *Resolver, perm SessionPermission) fiber.Handler {
	return func(c fiber.Ctx) error {
		userIDVal := c.Locals("userID")
		userID, ok := userIDVal.(ids.UserId)
		if !ok {
			return httputil.Fail(c, apierrors.HTTPStatus(apierrors.CodeUnauthenticated), apierrors.CodeUnauthenticated, "authentication required")
		}

		sessionID, err := ids.ParseSessionId(c.Params("sessionID"))
		if err != nil {
			return httputil.Fail(c, apierrors.HTTPStatus(apierrors.CodeInvalidArgument), apierrors.CodeInvalidArgument, "invalid session id")
		}

		allowed, err := resolver.HasPermission(c.Context(), userID, sessionID, perm)
		if err != nil {
			return httputil.Fail(c, apierrors.HTTPStatus(apierrors.CodeInternal), apierrors.CodeInternal, "failed to check permissions")
		}
		if !allowed {
			return httputil.Fail(c, apierrors.HTTPStatus(apierrors.CodePermissionDenied), apierrors.CodePermissionDenied, "missing required permission")
		}
		return c.Next()
	}
}

// RequireServerPermission returns Fiber middleware that checks a
// server-wide (session-independent) permission.
func RequireServerPermission(resolver *Resolver, perm ServerPermission) fiber.Handler {
	return func(c fiber.Ctx) error {
		userIDVal := c.Locals("userID")
		userID, ok := userIDVal.(ids.UserId)
		if !ok {
			return httputil.Fail(c, apierrors.HTTPStatus(apierrors.CodeUnauthenticated), apierrors.CodeUnauthenticated, "authentication required")
		}

		allowed, err := resolver.HasServerPermission(c.Context(), userID, perm)
		if err != nil {
			return httputil.Fail(c, apierrors.HTTPStatus(apierrors.CodeInternal), apierrors.CodeInternal, "failed to check permissions")
		}
		if !allowed {
			return httputil.Fail(c, apierrors.HTTPStatus(apierrors.CodePermissionDenied), apierrors.CodePermissionDenied, "missing required server permission")
		}
		return c.Next()
	}
}
