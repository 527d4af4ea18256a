package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/monolith-auth/monolith-auth/internal/auth"
	"github.com/monolith-auth/monolith-auth/internal/db/controller/user"
	"github.com/monolith-auth/monolith-auth/internal/db/models"
	fiberlogger "github.com/monolith-auth/monolith-auth/internal/logger/adapter/fiber"
	"github.com/monolith-auth/monolith-auth/internal/web/handler"
)

// Identity resolves the user id bound to the request's session.
type Identity interface {
	CurrentUserID(c *fiber.Ctx) (uint64, bool, error)
}

// Users loads a stored user.
type Users interface {
	User(ctx context.Context, id uint64) (*models.User, error)
}

// RequireUser returns a middleware that lets only requests with a bound,
// existing user through. The user is stored under handler.CurrentUserLocal.
func RequireUser(identity Identity, users Users) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := identity.CurrentUserID(c)
		if err != nil {
			log.Error().Err(err).Msg("failed to read session")

			return fiber.ErrInternalServerError
		}

		if !ok {
			return Unauthenticated(c)
		}

		u, err := users.User(c.UserContext(), id)
		if errors.Is(err, user.ErrUserNotFound) {
			log.Warn().Uint64("user_id", id).Msg("session bound to missing user")

			return Unauthenticated(c)
		}

		if err != nil {
			log.Error().Err(err).Uint64("user_id", id).Msg("failed to load current user")

			return fiber.ErrInternalServerError
		}

		c.Locals(handler.CurrentUserLocal, u)
		c.Locals(fiberlogger.UserIDLocal, u.ID)

		return c.Next()
	}
}

// Unauthenticated answers 401 with a JSON error body.
func Unauthenticated(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": auth.ErrUnauthenticated.Error()})
}
