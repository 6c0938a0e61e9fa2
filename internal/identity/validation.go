package identity

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// ValidateEmail parses and normalizes an email address, returning the
// normalized form. Returns ErrInvalidEmail if the format is invalid.
func ValidateEmail(email string) (normalized string, err error) {
	addr, parseErr := mail.ParseAddress(email)
	if parseErr != nil {
		return "", ErrInvalidEmail
	}
	normalized = strings.ToLower(addr.Address)
	parts := strings.SplitN(normalized, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

// ValidateDisplayName checks that a display name is between 1 and 64
// Unicode characters, per the session-member display-name bound.
func ValidateDisplayName(name string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(name)); n < 1 || n > 64 {
		return ErrDisplayNameLength
	}
	return nil
}

// ValidatePassword checks that a password is between 8 and 128 characters.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	if len(password) > 128 {
		return ErrPasswordTooLong
	}
	return nil
}
