package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/identity"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/user"
)

// AccountService wraps identity.Service (register/login) and the user
// repository (profile reads/updates) behind the error-code boundary the
// API layer expects.
type AccountService struct {
	auth  *identity.Service
	users user.Repository
	log   zerolog.Logger
}

func NewAccountService(auth *identity.Service, users user.Repository, logger zerolog.Logger) *AccountService {
	return &AccountService{auth: auth, users: users, log: logger}
}

func (s *AccountService) Register(ctx context.Context, req identity.RegisterRequest) (*identity.AuthResult, error) {
	res, err := s.auth.Register(ctx, req)
	if err != nil {
		return nil, mapIdentityErr(err)
	}
	return res, nil
}

func (s *AccountService) Login(ctx context.Context, req identity.LoginRequest) (*identity.AuthResult, error) {
	res, err := s.auth.Login(ctx, req)
	if err != nil {
		return nil, mapIdentityErr(err)
	}
	return res, nil
}

// GetAccountInfo returns a single user's public profile fields, per the
// spec's get_account_info operation.
func (s *AccountService) GetAccountInfo(ctx context.Context, userID ids.UserId) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if err == user.ErrNotFound {
			return nil, apierrors.New(apierrors.CodeNotFound, "user not found")
		}
		return nil, apierrors.Wrap(apierrors.CodeInternal, "load user", err)
	}
	return u, nil
}

// GetAccountInfoBatch resolves multiple users in one round trip, per the
// original implementation's batched get_account_info operation that the
// distilled spec omitted.
func (s *AccountService) GetAccountInfoBatch(ctx context.Context, userIDs []ids.UserId) ([]user.User, error) {
	out := make([]user.User, 0, len(userIDs))
	for _, id := range userIDs {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			if err == user.ErrNotFound {
				continue
			}
			return nil, apierrors.Wrap(apierrors.CodeInternal, "load user", err)
		}
		out = append(out, *u)
	}
	return out, nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, userID ids.UserId, params user.UpdateParams) (*user.User, error) {
	if params.DisplayName != nil {
		if err := identity.ValidateDisplayName(*params.DisplayName); err != nil {
			return nil, apierrors.Wrap(apierrors.CodeInvalidArgument, err.Error(), err)
		}
	}
	u, err := s.users.Update(ctx, userID, params)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "update profile", err)
	}
	return u, nil
}

func (s *AccountService) Deactivate(ctx context.Context, userID ids.UserId, password string) error {
	if err := s.auth.DeactivateAccount(ctx, userID, password); err != nil {
		return mapIdentityErr(err)
	}
	return nil
}

func mapIdentityErr(err error) error {
	switch err {
	case identity.ErrInvalidCredentials, identity.ErrAccountLocked:
		return apierrors.Wrap(apierrors.CodeUnauthenticated, err.Error(), err)
	case identity.ErrAccountDeactivated, identity.ErrOAuthOnlyAccount:
		return apierrors.Wrap(apierrors.CodeFailedPrecondition, err.Error(), err)
	case identity.ErrEmailAlreadyTaken:
		return apierrors.Wrap(apierrors.CodeAlreadyExists, err.Error(), err)
	case identity.ErrInvalidEmail, identity.ErrDisplayNameLength, identity.ErrPasswordTooShort, identity.ErrPasswordTooLong:
		return apierrors.Wrap(apierrors.CodeInvalidArgument, err.Error(), err)
	default:
		return apierrors.Wrap(apierrors.CodeInternal, "authentication failed", err)
	}
}
