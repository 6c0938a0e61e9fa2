package message

import "testing"

func TestValidatePayload(t *testing.T) {
	if err := ValidatePayload(nil); err != ErrEmptyPayload {
		t.Errorf("err = %v, want ErrEmptyPayload", err)
	}
	if err := ValidatePayload([]byte("not json")); err != ErrEmptyPayload {
		t.Errorf("err = %v, want ErrEmptyPayload", err)
	}
	if err := ValidatePayload([]byte(`{"text":"hi"}`)); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestClampLimit(t *testing.T) {
	if got := ClampLimit(0); got != DefaultFetchLimit {
		t.Errorf("ClampLimit(0) = %d, want %d", got, DefaultFetchLimit)
	}
	if got := ClampLimit(-5); got != DefaultFetchLimit {
		t.Errorf("ClampLimit(-5) = %d, want %d", got, DefaultFetchLimit)
	}
	if got := ClampLimit(999999); got != MaxFetchLimit {
		t.Errorf("ClampLimit(999999) = %d, want %d", got, MaxFetchLimit)
	}
	if got := ClampLimit(50); got != 50 {
		t.Errorf("ClampLimit(50) = %d, want 50", got)
	}
}
