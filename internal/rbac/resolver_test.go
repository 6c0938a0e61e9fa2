package rbac

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/ids"
)

type fakeStore struct {
	owners      map[ids.SessionId]ids.UserId
	memberRoles map[ids.UserId]map[ids.SessionId][]ids.RoleId
	rolePerms   map[ids.RoleId]SessionPermission
	serverPerms map[ids.UserId]ServerPermission
}

func (f *fakeStore) IsSessionOwner(_ context.Context, userID ids.UserId, sessionID ids.SessionId) (bool, error) {
	return f.owners[sessionID] == userID, nil
}

func (f *fakeStore) UserSessionRoles(_ context.Context, userID ids.UserId, sessionID ids.SessionId) ([]ids.RoleId, error) {
	return f.memberRoles[userID][sessionID], nil
}

func (f *fakeStore) RolePermissions(_ context.Context, roleID ids.RoleId) (SessionPermission, error) {
	return f.rolePerms[roleID], nil
}

func (f *fakeStore) ServerPermissions(_ context.Context, userID ids.UserId) (ServerPermission, error) {
	return f.serverPerms[userID], nil
}

func TestResolveOwnerGetsEverything(t *testing.T) {
	store := &fakeStore{owners: map[ids.SessionId]ids.UserId{10: 1}}
	r := NewResolver(store, zerolog.Nop())

	perm, err := r.Resolve(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if perm != AllSessionPermissions {
		t.Errorf("perm = %v, want AllSessionPermissions", perm)
	}
}

func TestResolveRoleUnion(t *testing.T) {
	store := &fakeStore{
		owners: map[ids.SessionId]ids.UserId{},
		memberRoles: map[ids.UserId]map[ids.SessionId][]ids.RoleId{
			2: {10: {ids.RoleMember}},
		},
		rolePerms: map[ids.RoleId]SessionPermission{
			ids.RoleMember: PermSendMessage,
		},
		serverPerms: map[ids.UserId]ServerPermission{},
	}
	r := NewResolver(store, zerolog.Nop())

	ok, err := r.HasPermission(context.Background(), 2, 10, PermSendMessage)
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if !ok {
		t.Error("expected PermSendMessage to be granted via role union")
	}

	ok, err = r.HasPermission(context.Background(), 2, 10, PermBanMember)
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if ok {
		t.Error("expected PermBanMember to be denied")
	}
}

func TestResolveServerAdminBypassesSessionChecks(t *testing.T) {
	store := &fakeStore{
		owners:      map[ids.SessionId]ids.UserId{},
		memberRoles: map[ids.UserId]map[ids.SessionId][]ids.RoleId{},
		serverPerms: map[ids.UserId]ServerPermission{3: ServerManageSessions},
	}
	r := NewResolver(store, zerolog.Nop())

	ok, err := r.HasPermission(context.Background(), 3, 99, PermBanMember)
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if !ok {
		t.Error("expected server-management admin to bypass session role checks")
	}
}
