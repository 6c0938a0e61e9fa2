package webrtcroom

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ourchat/ourchat-server/internal/ids"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(rdb, time.Minute)
}

func TestCreateJoinLeaveLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	roomID := ids.RoomId(1)
	creator := ids.UserId(10)
	other := ids.UserId(20)

	room, err := s.Create(ctx, roomID, creator, "lobby", true, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if room.CreatorID != creator || !contains(room.Admins, creator) || !contains(room.Members, creator) {
		t.Fatalf("room = %+v, want creator %d seeded as member and admin", room, creator)
	}
	if room.UsersNum != 0 {
		t.Fatalf("UsersNum = %d, want 0 before any explicit join", room.UsersNum)
	}

	room, err = s.Join(ctx, roomID, creator)
	if err != nil {
		t.Fatalf("Join(creator): %v", err)
	}
	if room.UsersNum != 1 {
		t.Errorf("UsersNum after creator joins = %d, want 1", room.UsersNum)
	}

	room, err = s.Join(ctx, roomID, other)
	if err != nil {
		t.Fatalf("Join(other): %v", err)
	}
	if room.UsersNum != 2 || !contains(room.Members, other) {
		t.Errorf("room after second join = %+v, want users_num 2 with other present", room)
	}

	// Joining again is a no-op.
	room, err = s.Join(ctx, roomID, other)
	if err != nil {
		t.Fatalf("repeat Join(other): %v", err)
	}
	if room.UsersNum != 2 {
		t.Errorf("UsersNum after repeat join = %d, want 2", room.UsersNum)
	}

	if err := s.Leave(ctx, roomID, creator); err != nil {
		t.Fatalf("Leave(creator): %v", err)
	}
	room, err = s.Get(ctx, roomID)
	if err != nil {
		t.Fatalf("Get after creator left: %v", err)
	}
	if contains(room.Members, creator) || contains(room.Admins, creator) {
		t.Errorf("creator should be removed from both members and admins after leaving")
	}
	if room.CreatorID != creator {
		t.Errorf("CreatorID = %d, want %d (creator field never reassigns)", room.CreatorID, creator)
	}

	if err := s.Leave(ctx, roomID, other); err != nil {
		t.Fatalf("Leave(other): %v", err)
	}
	if _, err := s.Get(ctx, roomID); err != ErrRoomNotFound {
		t.Errorf("Get after last member left err = %v, want ErrRoomNotFound (auto_delete)", err)
	}
}

func TestInviteGatedJoin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	roomID := ids.RoomId(2)
	creator := ids.UserId(1)
	invitee := ids.UserId(2)
	stranger := ids.UserId(3)

	if _, err := s.Create(ctx, roomID, creator, "gated", false, false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Join(ctx, roomID, stranger); err != ErrNotInvited {
		t.Errorf("Join without invite err = %v, want ErrNotInvited", err)
	}
	if err := s.Invite(ctx, roomID, creator, invitee); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if _, err := s.Join(ctx, roomID, invitee); err != nil {
		t.Errorf("Join after invite: %v", err)
	}
}

func TestAcceptInvitation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	roomID := ids.RoomId(3)
	creator := ids.UserId(1)
	invitee := ids.UserId(2)

	if _, err := s.Create(ctx, roomID, creator, "gated", false, false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Invite(ctx, roomID, creator, invitee); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	room, err := s.AcceptInvitation(ctx, roomID, invitee)
	if err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}
	if !contains(room.Members, invitee) || contains(room.Invitees, invitee) {
		t.Errorf("room after accept = %+v, want invitee moved from invitees to members", room)
	}
	if room.UsersNum != 1 {
		t.Errorf("UsersNum after accept = %d, want 1", room.UsersNum)
	}

	if _, err := s.AcceptInvitation(ctx, roomID, ids.UserId(99)); err != ErrNotInvited {
		t.Errorf("AcceptInvitation without invite err = %v, want ErrNotInvited", err)
	}
}

func TestPromoteAndDemoteAdmin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	roomID := ids.RoomId(4)
	creator := ids.UserId(1)
	member := ids.UserId(2)
	stranger := ids.UserId(3)

	if _, err := s.Create(ctx, roomID, creator, "room", true, false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Join(ctx, roomID, member); err != nil {
		t.Fatalf("Join(member): %v", err)
	}

	if err := s.PromoteAdmin(ctx, roomID, stranger, member); err != ErrNotAdmin {
		t.Errorf("PromoteAdmin by non-admin err = %v, want ErrNotAdmin", err)
	}
	if err := s.PromoteAdmin(ctx, roomID, creator, ids.UserId(404)); err != ErrNotMember {
		t.Errorf("PromoteAdmin of non-member err = %v, want ErrNotMember", err)
	}
	if err := s.PromoteAdmin(ctx, roomID, creator, member); err != nil {
		t.Fatalf("PromoteAdmin: %v", err)
	}
	room, err := s.Get(ctx, roomID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !contains(room.Admins, member) {
		t.Errorf("member should be an admin after promotion")
	}

	if err := s.DemoteAdmin(ctx, roomID, member, creator); err != ErrCreatorOnly {
		t.Errorf("DemoteAdmin by non-creator err = %v, want ErrCreatorOnly", err)
	}
	if err := s.DemoteAdmin(ctx, roomID, creator, creator); err != ErrSelfTarget {
		t.Errorf("DemoteAdmin of creator err = %v, want ErrSelfTarget", err)
	}
	if err := s.DemoteAdmin(ctx, roomID, creator, member); err != nil {
		t.Fatalf("DemoteAdmin: %v", err)
	}
	room, err = s.Get(ctx, roomID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if contains(room.Admins, member) {
		t.Errorf("member should no longer be an admin after demotion")
	}
}

func TestKickUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	roomID := ids.RoomId(5)
	creator := ids.UserId(1)
	member := ids.UserId(2)

	if _, err := s.Create(ctx, roomID, creator, "room", true, false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Join(ctx, roomID, member); err != nil {
		t.Fatalf("Join(member): %v", err)
	}

	if err := s.KickUser(ctx, roomID, creator, creator); err != ErrSelfTarget {
		t.Errorf("self-kick err = %v, want ErrSelfTarget", err)
	}
	if err := s.KickUser(ctx, roomID, member, creator); err != ErrSelfTarget {
		t.Errorf("kick creator err = %v, want ErrSelfTarget", err)
	}
	if err := s.KickUser(ctx, roomID, creator, member); err != nil {
		t.Fatalf("KickUser: %v", err)
	}
	room, err := s.Get(ctx, roomID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if contains(room.Members, member) {
		t.Errorf("member should be removed after kick")
	}
	if room.UsersNum != 0 {
		t.Errorf("UsersNum after kick = %d, want 0", room.UsersNum)
	}
}

func TestGetMembersRequiresMembership(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	roomID := ids.RoomId(6)
	creator := ids.UserId(1)
	stranger := ids.UserId(2)

	if _, err := s.Create(ctx, roomID, creator, "room", true, false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.GetMembers(ctx, roomID, stranger); err != ErrNotMember {
		t.Errorf("GetMembers by non-member err = %v, want ErrNotMember", err)
	}
	members, err := s.GetMembers(ctx, roomID, creator)
	if err != nil {
		t.Fatalf("GetMembers: %v", err)
	}
	if len(members) != 1 || members[0] != creator {
		t.Errorf("members = %+v, want [%d]", members, creator)
	}
}

func TestValidateSignal(t *testing.T) {
	if err := ValidateSignal(SignalOffer, []byte(`{"sdp":"v=0"}`)); err != nil {
		t.Errorf("valid offer rejected: %v", err)
	}
	if err := ValidateSignal(SignalOffer, nil); err == nil {
		t.Error("empty offer body should be rejected")
	}
	if err := ValidateSignal("bogus", []byte(`{}`)); err == nil {
		t.Error("unrecognized signal kind should be rejected")
	}
}
