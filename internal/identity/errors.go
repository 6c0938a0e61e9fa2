package identity

import "errors"

// Sentinel errors for the identity package.
var (
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrDisplayNameLength  = errors.New("display name must be between 1 and 64 characters")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 128 characters")
	ErrInvalidCredentials = errors.New("invalid ocid, email, or password")
	ErrEmailAlreadyTaken  = errors.New("email already registered")
	ErrAccountLocked      = errors.New("account is locked due to too many failed login attempts")
	ErrAccountDeactivated = errors.New("account has been deactivated")
	ErrOAuthOnlyAccount   = errors.New("this account has no password; sign in with its linked provider")
	ErrTokenExpired       = errors.New("access token has expired")
	ErrTokenMalformed     = errors.New("access token is malformed or has an invalid signature")
)
