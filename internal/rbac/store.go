package rbac

import (
	"context"

	"github.com/ourchat/ourchat-server/internal/ids"
)

// Store is the data-access contract the Resolver needs: the set of session
// roles a user holds, the permission bitmask each role carries, whether the
// user owns the session, and the user's server-management bitmask.
type Store interface {
	IsSessionOwner(ctx context.Context, userID ids.UserId, sessionID ids.SessionId) (bool, error)
	UserSessionRoles(ctx context.Context, userID ids.UserId, sessionID ids.SessionId) ([]ids.RoleId, error)
	RolePermissions(ctx context.Context, roleID ids.RoleId) (SessionPermission, error)
	ServerPermissions(ctx context.Context, userID ids.UserId) (ServerPermission, error)
}
