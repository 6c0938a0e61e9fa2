package rbac

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/ids"
)

// Resolver computes effective permissions for a user, either scoped to one
// session or scoped to the server as a whole.
type Resolver struct {
	store Store
	log   zerolog.Logger
}

// NewResolver creates a new permission resolver.
func NewResolver(store Store, logger zerolog.Logger) *Resolver {
	return &Resolver{store: store, log: logger}
}

// Resolve returns the effective session permissions for a user: the session
// owner and any server-management admin get every permission; otherwise the
// result is the union of every role the user holds in that session.
func (r *Resolver) Resolve(ctx context.Context, userID ids.UserId, sessionID ids.SessionId) (SessionPermission, error) {
	isOwner, err := r.store.IsSessionOwner(ctx, userID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("check session owner: %w", err)
	}
	if isOwner {
		return AllSessionPermissions, nil
	}

	serverPerm, err := r.store.ServerPermissions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get server permissions: %w", err)
	}
	if serverPerm.Has(ServerManageSessions) {
		return AllSessionPermissions, nil
	}

	roleIDs, err := r.store.UserSessionRoles(ctx, userID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("get user session roles: %w", err)
	}

	var effective SessionPermission
	for _, roleID := range roleIDs {
		perm, err := r.store.RolePermissions(ctx, roleID)
		if err != nil {
			return 0, fmt.Errorf("get role permissions for role %s: %w", roleID, err)
		}
		effective = effective.Add(perm)
	}
	return effective, nil
}

// HasPermission checks whether a user has a specific permission in a session.
func (r *Resolver) HasPermission(ctx context.Context, userID ids.UserId, sessionID ids.SessionId, perm SessionPermission) (bool, error) {
	effective, err := r.Resolve(ctx, userID, sessionID)
	if err != nil {
		return false, err
	}
	return effective.Has(perm), nil
}

// ResolveServer returns a user's server-management bitmask.
func (r *Resolver) ResolveServer(ctx context.Context, userID ids.UserId) (ServerPermission, error) {
	return r.store.ServerPermissions(ctx, userID)
}

// HasServerPermission checks whether a user holds a specific server-wide permission.
func (r *Resolver) HasServerPermission(ctx context.Context, userID ids.UserId, perm ServerPermission) (bool, error) {
	effective, err := r.ResolveServer(ctx, userID)
	if err != nil {
		return false, err
	}
	return effective.Has(perm), nil
}
