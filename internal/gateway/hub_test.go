package gateway

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/bus"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/ratelimit"
)

func newTestHub(t *testing.T, maxConnections int) *Hub {
	t.Helper()
	return NewHub(Config{JWTSecret: "test-secret-at-least-32-bytes-long", MaxConnections: maxConnections},
		nil, nil, ratelimit.NewLimiter(10, 0), zerolog.Nop())
}

func newTestClient(hub *Hub, userID ids.UserId) *Client {
	c := newClient(hub, nil, zerolog.Nop())
	c.userID = userID
	c.identified = true
	return c
}

func TestRegisterDisplacesExistingConnection(t *testing.T) {
	hub := newTestHub(t, 10)
	first := newTestClient(hub, ids.UserId(1))
	second := newTestClient(hub, ids.UserId(1))

	if err := hub.register(first); err != nil {
		t.Fatalf("register(first): %v", err)
	}
	if err := hub.register(second); err != nil {
		t.Fatalf("register(second): %v", err)
	}

	select {
	case <-first.done:
	default:
		t.Error("displaced connection should have been closed")
	}

	hub.mu.RLock()
	current := hub.clients[ids.UserId(1)]
	hub.mu.RUnlock()
	if current != second {
		t.Error("second registration should own the user's slot")
	}
}

func TestRegisterEnforcesMaxConnections(t *testing.T) {
	hub := newTestHub(t, 1)
	if err := hub.register(newTestClient(hub, ids.UserId(1))); err != nil {
		t.Fatalf("register(1): %v", err)
	}
	if err := hub.register(newTestClient(hub, ids.UserId(2))); err != ErrMaxConnections {
		t.Errorf("register(2) err = %v, want ErrMaxConnections", err)
	}
}

func TestUnregisterOnlyRemovesOwnConnection(t *testing.T) {
	hub := newTestHub(t, 10)
	client := newTestClient(hub, ids.UserId(1))
	if err := hub.register(client); err != nil {
		t.Fatalf("register: %v", err)
	}

	stale := newTestClient(hub, ids.UserId(1))
	hub.unregister(stale)

	hub.mu.RLock()
	_, stillPresent := hub.clients[ids.UserId(1)]
	hub.mu.RUnlock()
	if !stillPresent {
		t.Error("unregistering a stale client should not remove the current connection")
	}
}

func TestHandleBusEventRoutesByRecipientSessionAndBroadcast(t *testing.T) {
	hub := newTestHub(t, 10)
	direct := newTestClient(hub, ids.UserId(1))
	member := newTestClient(hub, ids.UserId(2))
	member.setSessions([]ids.SessionId{5})
	bystander := newTestClient(hub, ids.UserId(3))
	for _, c := range []*Client{direct, member, bystander} {
		if err := hub.register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
		c.streaming.Store(true)
	}

	directID := int64(1)
	hub.handleBusEvent(nil, bus.Envelope{Type: "friend_invitation", Data: json.RawMessage(`{}`), RecipientID: &directID})
	if len(direct.send) != 1 {
		t.Errorf("direct recipient got %d frames, want 1", len(direct.send))
	}
	if len(member.send) != 0 || len(bystander.send) != 0 {
		t.Error("direct envelope should not reach non-recipients")
	}

	sessionID := int64(5)
	hub.handleBusEvent(nil, bus.Envelope{Type: "new_message", Data: json.RawMessage(`{}`), SessionID: &sessionID})
	if len(member.send) != 1 {
		t.Errorf("session member got %d frames, want 1", len(member.send))
	}
	if len(bystander.send) != 0 {
		t.Error("non-member should not receive a session-scoped envelope")
	}

	hub.handleBusEvent(nil, bus.Envelope{Type: "system_notice", Data: json.RawMessage(`{}`), IsAllUser: true})
	for name, c := range map[string]*Client{"direct": direct, "member": member, "bystander": bystander} {
		if len(c.send) == 0 {
			t.Errorf("%s should have received the broadcast envelope", name)
		}
	}
}
