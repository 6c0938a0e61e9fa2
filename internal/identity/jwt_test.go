package identity

import (
	"testing"
	"time"

	"github.com/ourchat/ourchat-server/internal/ids"
)

func TestNewAndValidateAccessToken(t *testing.T) {
	uid := ids.UserId(42)
	token, err := NewAccessToken(uid, "a-very-secret-value-32-chars-min", time.Hour, "ourchat-server")
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}

	claims, err := ValidateAccessToken(token, "a-very-secret-value-32-chars-min", "ourchat-server")
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.Subject != uid.String() {
		t.Errorf("subject = %q, want %q", claims.Subject, uid.String())
	}
}

func TestValidateAccessTokenExpired(t *testing.T) {
	uid := ids.UserId(1)
	token, err := NewAccessToken(uid, "a-very-secret-value-32-chars-min", -time.Minute, "ourchat-server")
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	_, err = ValidateAccessToken(token, "a-very-secret-value-32-chars-min", "ourchat-server")
	if err != ErrTokenExpired {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestValidateAccessTokenBadSignature(t *testing.T) {
	uid := ids.UserId(1)
	token, err := NewAccessToken(uid, "a-very-secret-value-32-chars-min", time.Hour, "ourchat-server")
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	_, err = ValidateAccessToken(token, "a-different-secret-value-32-chars", "ourchat-server")
	if err != ErrTokenMalformed {
		t.Errorf("err = %v, want ErrTokenMalformed", err)
	}
}
