package identity

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/config"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/user"
)

// Service implements authentication business logic, keeping HTTP handlers
// thin and focused on request parsing / response formatting.
type Service struct {
	users  user.Repository
	rdb    *redis.Client
	config *config.Config
	log    zerolog.Logger
	// dummyHash is a precomputed Argon2id hash used to keep login timing
	// constant when an ocid/email is not found, preventing enumeration via
	// response-time analysis.
	dummyHash string
}

// NewService creates a new identity service. It returns an error if the
// Argon2id configuration is invalid, since password hashing is fundamental
// to every auth operation.
func NewService(users user.Repository, rdb *redis.Client, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	dummy, err := HashPassword("ourchat-dummy-password", cfg.Argon2Memory, cfg.Argon2Iterations, cfg.Argon2Parallelism, cfg.Argon2SaltLength, cfg.Argon2KeyLength)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	return &Service{users: users, rdb: rdb, config: cfg, log: logger, dummyHash: dummy}, nil
}

// RegisterRequest is the input for Service.Register.
type RegisterRequest struct {
	Email       string
	DisplayName string
	Password    string
}

// LoginRequest is the input for Service.Login. Exactly one of Ocid or Email
// identifies the account, matching the spec's {ocid,password} or
// {email,password} login shapes.
type LoginRequest struct {
	Ocid     ids.Ocid
	Email    string
	Password string
}

// AuthResult is the output of Register and Login.
type AuthResult struct {
	UserID      ids.UserId
	AccessToken string
}

// Register validates inputs, allocates a collision-free Ocid, hashes the
// password, and creates the account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	email, err := ValidateEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidateDisplayName(req.DisplayName); err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(
		req.Password,
		s.config.Argon2Memory, s.config.Argon2Iterations, s.config.Argon2Parallelism,
		s.config.Argon2SaltLength, s.config.Argon2KeyLength,
	)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	ocid, err := s.allocateOcid(ctx)
	if err != nil {
		return nil, err
	}

	userID, err := s.users.Create(ctx, user.CreateParams{
		Ocid:         ocid,
		Email:        email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
	})
	if err != nil {
		if err == user.ErrAlreadyExists {
			return nil, ErrEmailAlreadyTaken
		}
		return nil, err
	}

	token, err := NewAccessToken(userID, s.config.JWTSecret, s.config.JWTAccessTTL, s.config.JWTIssuer)
	if err != nil {
		return nil, err
	}
	return &AuthResult{UserID: userID, AccessToken: token}, nil
}

// allocateOcid generates a new Ocid, re-rolling up to a small number of
// times on collision before giving up.
func (s *Service) allocateOcid(ctx context.Context) (ids.Ocid, error) {
	const maxAttempts = 5
	for i := 0; i < maxAttempts; i++ {
		candidate, err := ids.NewOcid()
		if err != nil {
			return "", fmt.Errorf("generate ocid: %w", err)
		}
		exists, err := s.users.OcidExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check ocid uniqueness: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("ocid allocation: exhausted %d attempts without a unique id", maxAttempts)
}

// Login authenticates by ocid+password or email+password, applying the
// account lockout state machine and a dummy-hash comparison to keep login
// timing constant whether or not the account exists.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if err := ValidatePassword(req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	lockKey := "login_attempts:" + string(req.Ocid) + req.Email
	locked, err := s.isLocked(ctx, lockKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("lockout check failed")
	}
	if locked {
		return nil, ErrAccountLocked
	}

	var creds *user.Credentials
	if req.Ocid != "" {
		u, err := s.users.GetByOcid(ctx, req.Ocid)
		if err == nil {
			creds, err = s.users.GetCredentialsByID(ctx, u.ID)
			if err != nil {
				creds = nil
			}
		}
	} else {
		creds, err = s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			creds = nil
		}
	}

	hashToCheck := s.dummyHash
	if creds != nil && creds.PasswordHash != nil {
		hashToCheck = *creds.PasswordHash
	}
	match, verr := VerifyPassword(req.Password, hashToCheck)
	if verr != nil {
		return nil, fmt.Errorf("verify password: %w", verr)
	}

	if creds == nil || !match {
		s.recordFailedAttempt(ctx, lockKey)
		return nil, ErrInvalidCredentials
	}
	if creds.PasswordHash == nil {
		return nil, ErrOAuthOnlyAccount
	}
	if creds.Status == user.StatusLocked {
		return nil, ErrAccountLocked
	}
	if creds.Status == user.StatusDeactivated {
		return nil, ErrAccountDeactivated
	}

	s.clearFailedAttempts(ctx, lockKey)

	if NeedsRehash(*creds.PasswordHash, s.config.Argon2Memory, s.config.Argon2Iterations, s.config.Argon2Parallelism, s.config.Argon2SaltLength, s.config.Argon2KeyLength) {
		if newHash, err := HashPassword(req.Password, s.config.Argon2Memory, s.config.Argon2Iterations, s.config.Argon2Parallelism, s.config.Argon2SaltLength, s.config.Argon2KeyLength); err == nil {
			if err := s.users.UpdatePasswordHash(ctx, creds.ID, newHash); err != nil {
				s.log.Warn().Err(err).Msg("lazy password rehash failed")
			}
		}
	}

	token, err := NewAccessToken(creds.ID, s.config.JWTSecret, s.config.JWTAccessTTL, s.config.JWTIssuer)
	if err != nil {
		return nil, err
	}
	return &AuthResult{UserID: creds.ID, AccessToken: token}, nil
}

func (s *Service) isLocked(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Get(ctx, "lockout:"+key).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Service) recordFailedAttempt(ctx context.Context, key string) {
	n, err := s.rdb.Incr(ctx, "attempts:"+key).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("record failed login attempt")
		return
	}
	if n == 1 {
		s.rdb.Expire(ctx, "attempts:"+key, s.config.LoginAttemptWindow)
	}
	if int(n) >= s.config.LoginAttemptLimit {
		s.rdb.Set(ctx, "lockout:"+key, 1, s.config.LockoutDuration)
	}
}

func (s *Service) clearFailedAttempts(ctx context.Context, key string) {
	s.rdb.Del(ctx, "attempts:"+key, "lockout:"+key)
}

// VerifyUserPassword re-checks a user's current password, used to gate
// sensitive operations like account deactivation.
func (s *Service) VerifyUserPassword(ctx context.Context, userID ids.UserId, password string) (bool, error) {
	creds, err := s.users.GetCredentialsByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if creds.PasswordHash == nil {
		return false, ErrOAuthOnlyAccount
	}
	return VerifyPassword(password, *creds.PasswordHash)
}

// DeactivateAccount transitions the account to Deactivated after verifying
// the current password.
func (s *Service) DeactivateAccount(ctx context.Context, userID ids.UserId, password string) error {
	ok, err := s.VerifyUserPassword(ctx, userID, password)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return s.users.SetStatus(ctx, userID, user.StatusDeactivated)
}
