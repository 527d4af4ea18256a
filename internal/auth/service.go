package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/monolith-auth/monolith-auth/internal/db/controller/user"
	"github.com/monolith-auth/monolith-auth/internal/db/models"
)

// Users is the persistence the account service needs.
// *user.Repository implements it.
type Users interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uint64) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	UpdateProfile(ctx context.Context, u *models.User) error
}

// Service maps provider profiles to stored users.
type Service struct {
	users          Users
	refreshProfile bool
}

// NewService returns a Service over users. With refreshProfile set, stored
// display fields are overwritten by the provider's values on every login.
func NewService(users Users, refreshProfile bool) *Service {
	return &Service{
		users:          users,
		refreshProfile: refreshProfile,
	}
}

// Upsert returns the user for p.Email, creating it on first login.
func (s *Service) Upsert(ctx context.Context, p Profile) (*models.User, error) {
	if p.Email == "" {
		return nil, user.ErrEmailEmpty
	}

	existing, err := s.users.FindByEmail(ctx, p.Email)

	switch {
	case err == nil:
		return s.refresh(ctx, existing, p)
	case !errors.Is(err, user.ErrUserNotFound):
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	u := models.NewUser(p.Email, p.Name, p.Nickname, p.EmailVerified, p.Picture)

	err = s.users.Create(ctx, u)
	if errors.Is(err, user.ErrDuplicateUser) {
		log.Debug().Str("email", p.Email).Msg("user created concurrently, re-reading")

		existing, err = s.users.FindByEmail(ctx, p.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read user after duplicate insert: %w", err)
		}

		return s.refresh(ctx, existing, p)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Uint64("user_id", u.ID).Msg("user created")

	return u, nil
}

// User returns the stored user with id.
func (s *Service) User(ctx context.Context, id uint64) (*models.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *Service) refresh(ctx context.Context, u *models.User, p Profile) (*models.User, error) {
	if !s.refreshProfile {
		return u, nil
	}

	u.Name = p.Name
	u.Nickname = p.Nickname
	u.Picture = p.Picture
	u.EmailVerified = p.EmailVerified

	if err := s.users.UpdateProfile(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to refresh user profile: %w", err)
	}

	return u, nil
}
