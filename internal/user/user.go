package user

import (
	"context"
	"errors"
	"time"

	"github.com/ourchat/ourchat-server/internal/ids"
)

// Sentinel errors for the user package.
var (
	ErrNotFound         = errors.New("user not found")
	ErrAlreadyExists     = errors.New("email or ocid already taken")
	ErrEmailLength       = errors.New("email must be a valid address")
	ErrPasswordRequired  = errors.New("password hash required for non-oauth accounts")
	ErrInvalidStatus     = errors.New("invalid account status transition")
)

// AccountStatus tracks login availability: Active accounts may authenticate
// normally; Locked accounts are denied login; Deactivated accounts were
// explicitly closed by their owner. The failed-attempt lockout in
// internal/identity is held in Valkey and does not set StatusLocked.
type AccountStatus string

const (
	StatusActive      AccountStatus = "active"
	StatusLocked      AccountStatus = "locked"
	StatusDeactivated AccountStatus = "deactivated"
)

// User holds the core identity fields read from the database.
type User struct {
	ID               ids.UserId
	Ocid             ids.Ocid
	Email            string
	DisplayName      string
	AvatarKey        *string
	PublicKey        *string // E2EE long-term public key, set once and immutable
	StorageBytesUsed int64
	StorageQuota     int64
	FriendsCount     int
	Status           AccountStatus
	OAuthProvider    *string
	CreatedAt        time.Time
	UpdateTime       time.Time
	PublicUpdateTime time.Time
}

// Credentials extends User with the password hash. Only repository methods
// that serve the authentication path return this type.
type Credentials struct {
	User
	PasswordHash *string // nil iff OAuthProvider is set
}

// CreateParams groups the inputs for creating a new local (password-based)
// user account.
type CreateParams struct {
	Ocid         ids.Ocid
	Email        string
	DisplayName  string
	PasswordHash string
}

// CreateOAuthParams groups the inputs for creating an OAuth-backed account,
// which carries no password hash.
type CreateOAuthParams struct {
	Ocid          ids.Ocid
	Email         string
	DisplayName   string
	OAuthProvider string
}

// UpdateParams groups the optional fields for updating a user profile.
type UpdateParams struct {
	DisplayName *string
	AvatarKey   *string
	PublicKey   *string
}

// Repository defines the data-access contract for user operations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (ids.UserId, error)
	CreateOAuth(ctx context.Context, params CreateOAuthParams) (ids.UserId, error)
	GetByID(ctx context.Context, id ids.UserId) (*User, error)
	GetByOcid(ctx context.Context, ocid ids.Ocid) (*User, error)
	GetByEmail(ctx context.Context, email string) (*Credentials, error)
	GetCredentialsByID(ctx context.Context, id ids.UserId) (*Credentials, error)
	OcidExists(ctx context.Context, ocid ids.Ocid) (bool, error)
	UpdatePasswordHash(ctx context.Context, userID ids.UserId, hash string) error
	Update(ctx context.Context, id ids.UserId, params UpdateParams) (*User, error)
	SetStatus(ctx context.Context, id ids.UserId, status AccountStatus) error
	AdjustStorageUsed(ctx context.Context, id ids.UserId, deltaBytes int64) error
	AdjustFriendsCount(ctx context.Context, id ids.UserId, delta int) error
	Delete(ctx context.Context, id ids.UserId) error
}
