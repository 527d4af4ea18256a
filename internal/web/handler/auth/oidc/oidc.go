package oidc

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/monolith-auth/monolith-auth/internal/auth"
	"github.com/monolith-auth/monolith-auth/internal/db/models"
	"github.com/monolith-auth/monolith-auth/internal/web/handler"
	"github.com/monolith-auth/monolith-auth/internal/web/handler/home"
)

const (
	// LoginPath is the path to initiate login.
	LoginPath = handler.RootPath + "login"

	// CallbackPath is the path the provider redirects back to.
	CallbackPath = handler.RootPath + "callback"
)

var loginsTotal = promauto.NewCounterVec( //nolint:gochecknoglobals
	prometheus.CounterOpts{
		Name: "logins_total",
		Help: "Number of completed login callbacks, differentiated by result.",
	},
	[]string{"result"},
)

// Provider is the identity provider side of the flow.
type Provider interface {
	BeginAuthorization(redirectURI string) (auth.AuthorizationRequest, error)
	CompleteAuthorization(ctx context.Context, pending *auth.Pending, cb auth.Callback) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (auth.Profile, error)
}

// Accounts maps a provider profile to a stored user.
type Accounts interface {
	Upsert(ctx context.Context, p auth.Profile) (*models.User, error)
}

// Sessions keeps the flow state of a browser.
type Sessions interface {
	SavePending(c *fiber.Ctx, p auth.Pending) error
	Pending(c *fiber.Ctx) (*auth.Pending, error)
	ClearPending(c *fiber.Ctx) error
	BindUser(c *fiber.Ctx, id uint64) error
}

// Service is the login handler service.
type Service struct {
	provider    Provider
	accounts    Accounts
	sessions    Sessions
	redirectURI string
}

var _ handler.Service = (*Service)(nil)

// New returns the login handlers. baseURL is the externally visible url of the app.
func New(provider Provider, accounts Accounts, sessions Sessions, baseURL string) *Service {
	return &Service{
		provider:    provider,
		accounts:    accounts,
		sessions:    sessions,
		redirectURI: baseURL + CallbackPath,
	}
}

// Register adds the routes.
func (s *Service) Register(router fiber.Router) {
	router.Get(LoginPath, s.Login)
	router.Get(CallbackPath, s.Callback)
}

// Login starts the authorization and redirects to the provider.
func (s *Service) Login(c *fiber.Ctx) error {
	req, err := s.provider.BeginAuthorization(s.redirectURI)
	if err != nil {
		log.Error().Err(err).Msg("failed to begin authorization")

		return handler.RenderError(c, fiber.StatusInternalServerError, "Login could not be started.")
	}

	if err := s.sessions.SavePending(c, req.Pending); err != nil {
		log.Error().Err(err).Msg("failed to save pending authorization")

		return handler.RenderError(c, fiber.StatusInternalServerError, "Login could not be started.")
	}

	return c.Redirect(req.URL, fiber.StatusFound)
}

// Callback completes the authorization, stores the user and binds the session to it.
func (s *Service) Callback(c *fiber.Ctx) error {
	pending, err := s.sessions.Pending(c)
	if err != nil {
		log.Error().Err(err).Msg("failed to read pending authorization")

		return s.fail(c, fiber.StatusInternalServerError, "storage_error", "Your session could not be read.")
	}

	ctx := c.UserContext()

	token, err := s.provider.CompleteAuthorization(ctx, pending, auth.Callback{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	})
	if err != nil {
		log.Warn().Err(err).Msg("authorization exchange failed")

		status, msg := exchangeFailure(err)

		return s.fail(c, status, "exchange_failed", msg)
	}

	profile, err := s.provider.FetchProfile(ctx, token)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch profile")

		return s.fail(c, fiber.StatusBadGateway, "profile_failed", "Your profile could not be loaded from the identity provider.")
	}

	user, err := s.accounts.Upsert(ctx, profile)
	if err != nil {
		log.Error().Err(err).Msg("failed to store user")

		return s.fail(c, fiber.StatusInternalServerError, "storage_error", "Your account could not be stored.")
	}

	if err := s.sessions.BindUser(c, user.ID); err != nil {
		log.Error().Err(err).Uint64("user_id", user.ID).Msg("failed to bind session")

		return s.fail(c, fiber.StatusInternalServerError, "storage_error", "Your session could not be stored.")
	}

	loginsTotal.WithLabelValues("success").Inc()
	log.Info().Uint64("user_id", user.ID).Msg("user logged in")

	return c.Redirect(home.Path, fiber.StatusFound)
}

func (s *Service) fail(c *fiber.Ctx, status int, result, msg string) error {
	loginsTotal.WithLabelValues(result).Inc()

	if err := s.sessions.ClearPending(c); err != nil {
		log.Warn().Err(err).Msg("failed to clear pending authorization")
	}

	return handler.RenderError(c, status, msg)
}

func exchangeFailure(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrProviderUnavailable):
		return fiber.StatusBadGateway, "The identity provider is currently unavailable. Please try again later."
	case errors.Is(err, auth.ErrNoPendingAuthorization),
		errors.Is(err, auth.ErrStateMismatch),
		errors.Is(err, auth.ErrMissingCode):
		return fiber.StatusBadRequest, "The login request was invalid or has expired. Please log in again."
	case errors.Is(err, auth.ErrProviderDenied):
		return fiber.StatusUnauthorized, "The identity provider denied the login."
	default:
		return fiber.StatusUnauthorized, "The login could not be completed. Please log in again."
	}
}
