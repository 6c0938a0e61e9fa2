package ratelimit

import (
	"testing"
	"time"

	"github.com/ourchat/ourchat-server/internal/ids"
)

func TestLimiterAllowsUpToBurst(t *testing.T) {
	l := NewLimiter(3, time.Minute)
	uid := ids.UserId(1)
	for i := 0; i < 3; i++ {
		if !l.Allow(uid) {
			t.Fatalf("Allow() call %d = false, want true within burst", i)
		}
	}
	if l.Allow(uid) {
		t.Error("Allow() after exhausting burst = true, want false")
	}
}

func TestLimiterPerUserIsolation(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	a, b := ids.UserId(1), ids.UserId(2)
	if !l.Allow(a) || !l.Allow(b) {
		t.Error("each user should have its own independent bucket")
	}
}

func TestAdmissionGate(t *testing.T) {
	maintenance := true
	gate := NewAdmissionGate(func() bool { return maintenance })
	if gate.Admit(false) {
		t.Error("non-admin should be rejected during maintenance")
	}
	if !gate.Admit(true) {
		t.Error("server admin should bypass maintenance gate")
	}
	maintenance = false
	if !gate.Admit(false) {
		t.Error("non-admin should be admitted when maintenance mode is off")
	}
}
