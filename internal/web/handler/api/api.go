// Package api serves the profile of the logged in user as JSON.
package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/monolith-auth/monolith-auth/internal/db/models"
	"github.com/monolith-auth/monolith-auth/internal/web/handler"
)

// Path is the path of the profile endpoint.
const Path = handler.RootPath + "api"

// Service is the api handler service.
type Service struct {
	requireUser fiber.Handler
}

var _ handler.Service = (*Service)(nil)

// New returns the api handler. requireUser must store the user under
// handler.CurrentUserLocal or stop the request.
func New(requireUser fiber.Handler) *Service {
	return &Service{requireUser: requireUser}
}

// Register adds the routes.
func (s *Service) Register(router fiber.Router) {
	router.Get(Path, s.requireUser, s.Get)
}

// Get returns the public projection of the current user.
func (s *Service) Get(c *fiber.Ctx) error {
	user, ok := c.Locals(handler.CurrentUserLocal).(*models.User)
	if !ok || user == nil {
		log.Error().Msg("api reached without current user")

		return fiber.ErrInternalServerError
	}

	return c.JSON(user.Public())
}
