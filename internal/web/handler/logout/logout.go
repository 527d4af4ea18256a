// Package logout ends the local session and the provider session.
package logout

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/monolith-auth/monolith-auth/internal/web/handler"
)

// Path is the path of the logout route.
const Path = handler.RootPath + "logout"

// Sessions clears the browser's session.
type Sessions interface {
	Clear(c *fiber.Ctx) error
}

// Provider builds the provider's logout redirect.
type Provider interface {
	LogoutURL(returnTo string) string
}

// Service is the logout handler service.
type Service struct {
	sessions Sessions
	provider Provider
	returnTo string
}

var _ handler.Service = (*Service)(nil)

// New returns the logout handler. The provider sends the browser back to baseURL.
func New(sessions Sessions, provider Provider, baseURL string) *Service {
	return &Service{
		sessions: sessions,
		provider: provider,
		returnTo: baseURL + handler.RootPath,
	}
}

// Register adds the routes.
func (s *Service) Register(router fiber.Router) {
	router.Get(Path, s.Logout)
}

// Logout clears the session and redirects to the provider's logout endpoint.
// A failing store does not keep the user logged in at the provider.
func (s *Service) Logout(c *fiber.Ctx) error {
	if err := s.sessions.Clear(c); err != nil {
		log.Error().Err(err).Msg("failed to clear session")
	}

	return c.Redirect(s.provider.LogoutURL(s.returnTo), fiber.StatusFound)
}
