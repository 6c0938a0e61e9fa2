package identity

import "testing"

func TestValidateEmail(t *testing.T) {
	got, err := ValidateEmail("User@Example.com")
	if err != nil {
		t.Fatalf("ValidateEmail: %v", err)
	}
	if got != "user@example.com" {
		t.Errorf("got %q, want normalized lowercase", got)
	}

	if _, err := ValidateEmail("not-an-email"); err != ErrInvalidEmail {
		t.Errorf("err = %v, want ErrInvalidEmail", err)
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("short"); err != ErrPasswordTooShort {
		t.Errorf("err = %v, want ErrPasswordTooShort", err)
	}
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidatePassword(string(long)); err != ErrPasswordTooLong {
		t.Errorf("err = %v, want ErrPasswordTooLong", err)
	}
	if err := ValidatePassword("good-password"); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestValidateDisplayName(t *testing.T) {
	if err := ValidateDisplayName(""); err != ErrDisplayNameLength {
		t.Errorf("err = %v, want ErrDisplayNameLength", err)
	}
	if err := ValidateDisplayName("Ada"); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}
