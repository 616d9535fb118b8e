package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/user"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// Listing page bounds.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Service covers user self-service and the elevated-only administration
// of accounts.
type Service struct {
	repo   Repository
	logger logger.Logger
	config *config.Config
}

func NewService(repo Repository, logger logger.Logger, config *config.Config) (*Service, error) {
	if config == nil {
		return nil, errors.New("nil dependency: config")
	}
	return &Service{repo: repo, logger: logger, config: config}, nil
}

// UpdateParams defines parameters for UpdateMe. Nil fields stay untouched.
type UpdateParams struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

// UpdateMe changes the requester's display name and/or password.
func (s *Service) UpdateMe(ctx context.Context, requester *user.User, params UpdateParams) (*user.User, error) {
	if requester == nil {
		return nil, errs.ErrInvalidCredentials
	}

	if params.Name != nil && (len(*params.Name) < 2 || len(*params.Name) > 120) {
		return nil, &errs.ValidationError{
			Field: "name", Reason: "must be between 2 and 120 characters long",
		}
	}

	var passwordHash *string
	if params.Password != nil {
		if len(*params.Password) < 8 || len(*params.Password) > 72 {
			return nil, &errs.ValidationError{
				Field: "password", Reason: "must be between 8 and 72 characters long",
			}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*params.Password), s.config.PasswordHashCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hashStr := string(hash)
		passwordHash = &hashStr
	}

	updated, err := s.repo.UpdateProfile(ctx, requester.ID, params.Name, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("update profile %d: %w", requester.ID, err)
	}

	return updated, nil
}

// List returns all users. Elevated only.
func (s *Service) List(ctx context.Context, requester *user.User, offset, limit int) ([]*user.User, error) {
	if requester == nil {
		return nil, errs.ErrInvalidCredentials
	}
	if !requester.Role.Elevated() {
		return nil, errs.ErrForbidden
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.List(ctx, offset, limit)
}

// Deactivate flips a user's active flag off. Elevated only.
func (s *Service) Deactivate(ctx context.Context, requester *user.User, userID int) (*user.User, error) {
	if requester == nil {
		return nil, errs.ErrInvalidCredentials
	}
	if !requester.Role.Elevated() {
		return nil, errs.ErrForbidden
	}

	deactivated, err := s.repo.Deactivate(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.With(ctx,
		"event", "user_deactivated",
		"user_id", userID,
		"by", requester.ID,
	).Infof("user %d deactivated", userID)

	return deactivated, nil
}
