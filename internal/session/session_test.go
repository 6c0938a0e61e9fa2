package session

import (
	"testing"
	"time"
)

func TestValidateName(t *testing.T) {
	if err := ValidateName(""); err != ErrNameLength {
		t.Errorf("err = %v, want ErrNameLength", err)
	}
	if err := ValidateName("general"); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestRoomKeyDueNonEncrypted(t *testing.T) {
	s := &Session{IsEncrypted: false}
	if RoomKeyDue(s, time.Hour) {
		t.Error("non-encrypted sessions never need room-key rotation")
	}
}

func TestRoomKeyDueLeavingToProcess(t *testing.T) {
	s := &Session{IsEncrypted: true, RoomKeyEpochStarted: time.Now(), LeavingToProcess: true}
	if !RoomKeyDue(s, time.Hour) {
		t.Error("expected rotation to be due when a member left and processing is pending")
	}
}

func TestRoomKeyDueExpired(t *testing.T) {
	s := &Session{IsEncrypted: true, RoomKeyEpochStarted: time.Now().Add(-2 * time.Hour)}
	if !RoomKeyDue(s, time.Hour) {
		t.Error("expected rotation to be due after the rotation TTL elapses")
	}
}

func TestRoomKeyNotDueFresh(t *testing.T) {
	s := &Session{IsEncrypted: true, RoomKeyEpochStarted: time.Now()}
	if RoomKeyDue(s, time.Hour) {
		t.Error("expected rotation to not be due for a fresh key")
	}
}
