package web

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/hkdf"

	"github.com/monolith-auth/monolith-auth/internal/auth"
	"github.com/monolith-auth/monolith-auth/internal/config"
	fiberlogger "github.com/monolith-auth/monolith-auth/internal/logger/adapter/fiber"
	"github.com/monolith-auth/monolith-auth/internal/web/handler"
	"github.com/monolith-auth/monolith-auth/internal/web/handler/api"
	oidchandler "github.com/monolith-auth/monolith-auth/internal/web/handler/auth/oidc"
	"github.com/monolith-auth/monolith-auth/internal/web/handler/home"
	"github.com/monolith-auth/monolith-auth/internal/web/handler/logout"
	authmiddleware "github.com/monolith-auth/monolith-auth/internal/web/middleware/auth"
	"github.com/monolith-auth/monolith-auth/internal/web/session"
)

const (
	// CheckAlivePath answers 200 while the service accepts traffic.
	CheckAlivePath = "/checkalive"
	// MetricsPath exposes the prometheus metrics.
	MetricsPath = "/metrics"

	cookieKeyInfo = "monolith-auth cookie encryption"
)

// ErrMissingDependency is returned by New when a dependency is nil.
var ErrMissingDependency = errors.New("web service dependency is nil")

// Dependencies are the components the handlers are built from.
type Dependencies struct {
	Provider *auth.Client
	Accounts *auth.Service
	Sessions *session.Manager
}

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// WaitShutdown waits for SIGINT or SIGTERM and shuts the service down gracefully.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	s.Shutdown()
}

// Shutdown fails /checkalive for Webserver.ShutDownTime seconds, then stops the server.
func (s *Service) Shutdown() {
	// Graceful shutdown for reverse proxies: set status to fail, so checkalive returns fail.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	serverShutdown := make(chan struct{})

	go func() {
		log.Info().Msg("stopping http server ...")

		if err := s.App.Shutdown(); err != nil {
			log.Error().Err(err).Msg("")
		}

		serverShutdown <- struct{}{}
	}()

	<-serverShutdown
	log.Info().Msg("http server was stopped ... good bye...")
}

// New creates the web service with all routes registered.
func New(cfg *config.Config, deps Dependencies) (*Service, error) {
	if cfg == nil || deps.Provider == nil || deps.Accounts == nil || deps.Sessions == nil {
		return nil, ErrMissingDependency
	}

	cookieKey, err := deriveCookieKey(cfg.Webserver.SecretKey)
	if err != nil {
		return nil, err
	}

	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        cfg.Title,
			CaseSensitive:  true,
			Prefork:        false,
			Immutable:      true,
			Views:          newTemplateEngine(cfg.DevMode),
			JSONEncoder:    json.Marshal,
			JSONDecoder:    json.Unmarshal,
		},
	)

	service := &Service{
		cfg:          cfg,
		App:          app,
		fastShutDown: cfg.DevMode || cfg.Webserver.ShutDownTime <= 0,
	}
	service.alive.Store(true)

	if !cfg.Webserver.DisableRecover {
		app.Use(recover.New(recover.Config{EnableStackTrace: cfg.DevMode}))
	}

	app.Use(encryptcookie.New(encryptcookie.Config{Key: cookieKey}))
	app.Use(fiberlogger.New(fiberlogger.Config{Config: cfg.Log, CheckAliveURI: CheckAlivePath}))

	app.Get(CheckAlivePath, service.checkAlive)

	if cfg.Webserver.Metrics {
		app.Get(MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
	}

	requireUser := authmiddleware.RequireUser(deps.Sessions, deps.Accounts)

	handlers := []handler.Service{
		home.New(deps.Sessions, cfg.Title),
		oidchandler.New(deps.Provider, deps.Accounts, deps.Sessions, cfg.Webserver.URL),
		logout.New(deps.Sessions, deps.Provider, cfg.Webserver.URL),
		api.New(requireUser),
	}

	for _, h := range handlers {
		h.Register(app)
	}

	return service, nil
}

func (s *Service) checkAlive(c *fiber.Ctx) error {
	if !s.alive.Load() {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}

	return c.SendString("OK")
}

func newTemplateEngine(devMode bool) *html.Engine {
	if devMode {
		// in dev mode, use local filesystem for templates
		engine := html.New("./internal/web/templates", ".gohtml")
		engine.ShouldReload = true

		log.Warn().Msg("dev mode enabled: using local filesystem for templates")

		return engine
	}

	return html.NewFileSystem(http.FS(templateEmbedFS{embeddedTemplates}), ".gohtml")
}

// deriveCookieKey turns the configured secret into a base64 encoded AES-256 key.
func deriveCookieKey(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret key is empty")
	}

	key := make([]byte, 32) //nolint:mnd
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(cookieKeyInfo)), key); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(key), nil
}
