// Package home renders the landing page.
package home

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/monolith-auth/monolith-auth/internal/web/handler"
)

const (
	// Path is the path of the landing page.
	Path = handler.RootPath

	template = "home"
)

// Identity resolves the user bound to the request's session.
type Identity interface {
	CurrentUserID(c *fiber.Ctx) (uint64, bool, error)
}

// Service is the home handler service.
type Service struct {
	identity Identity
	title    string
}

var _ handler.Service = (*Service)(nil)

// New returns the home handler.
func New(identity Identity, title string) *Service {
	return &Service{identity: identity, title: title}
}

// Register adds the routes.
func (s *Service) Register(router fiber.Router) {
	router.Get(Path, s.Get)
}

// Get renders the landing page with links to login, logout and the api.
func (s *Service) Get(c *fiber.Ctx) error {
	_, loggedIn, err := s.identity.CurrentUserID(c)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read session on home page")
	}

	return c.Render(template, fiber.Map{
		"Title":    s.title,
		"LoggedIn": loggedIn,
	}, handler.BaseLayout)
}
