// Package daemon assembles the application from its configuration and runs it.
package daemon

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	sessionmysql "github.com/gofiber/storage/mysql/v2"
	sessionpostgres "github.com/gofiber/storage/postgres/v3"
	sessionredis "github.com/gofiber/storage/redis/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/monolith-auth/monolith-auth/internal/auth"
	"github.com/monolith-auth/monolith-auth/internal/config"
	"github.com/monolith-auth/monolith-auth/internal/db/controller/user"
	"github.com/monolith-auth/monolith-auth/internal/db/dsn"
	"github.com/monolith-auth/monolith-auth/internal/db/models"
	gormlogger "github.com/monolith-auth/monolith-auth/internal/logger/adapter/gorm"
	"github.com/monolith-auth/monolith-auth/internal/web"
	"github.com/monolith-auth/monolith-auth/internal/web/session"
)

const slowQueryThreshold = 200 * time.Millisecond

var (
	// ErrSessionStore is returned when the session store can not be opened.
	ErrSessionStore = errors.New("session store unavailable")
	// ErrUnsupportedSessionStore is returned for session store URLs without a known scheme.
	ErrUnsupportedSessionStore = errors.New("unsupported session store url scheme")
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	db         *gorm.DB
	storage    fiber.Storage
	webService *web.Service
}

// New opens the database and session store and builds the web service.
// Whatever was opened is closed again when a later step fails.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	d := &Daemon{cfg: cfg}

	if err := d.open(); err != nil {
		return nil, errors.Join(err, d.Close())
	}

	return d, nil
}

func (d *Daemon) open() error {
	var err error

	if d.db, err = OpenDB(d.cfg.DB); err != nil {
		return err
	}

	if err = Migrate(d.db); err != nil {
		return err
	}

	if d.storage, err = OpenSessionStorage(d.cfg.Webserver.Session); err != nil {
		return err
	}

	client, err := auth.NewClient(d.cfg.Auth0)
	if err != nil {
		return err
	}

	d.webService, err = web.New(d.cfg, web.Dependencies{
		Provider: client,
		Accounts: auth.NewService(user.NewRepository(d.db), d.cfg.Auth0.RefreshProfileOnLogin),
		Sessions: session.New(session.Config{
			Storage:    d.storage,
			Expiration: d.cfg.Webserver.Session.ExpiryTime,
			Secure:     strings.HasPrefix(d.cfg.Webserver.URL, "https://"),
		}),
	})

	return err
}

// Start serves until SIGINT or SIGTERM, then shuts down and releases the stores.
func (d *Daemon) Start() error {
	addr := ":" + strconv.Itoa(d.cfg.Webserver.Port)

	log.Info().Str("addr", addr).Str("url", d.cfg.Webserver.URL).Msg("starting web service")

	done := make(chan error, 1)

	go func() {
		done <- d.webService.Start(addr)
	}()

	d.webService.WaitShutdown()

	if err := <-done; err != nil {
		return err
	}

	return d.Close()
}

// Close releases the session store and the database pool.
func (d *Daemon) Close() error {
	var errs []error

	if d.storage != nil {
		errs = append(errs, d.storage.Close())
	}

	errs = append(errs, CloseDB(d.db))

	return errors.Join(errs...)
}

// CloseDB closes the connection pool behind db, a nil db is a no-op.
func CloseDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// OpenDB opens the database selected by cfg.URL.
func OpenDB(cfg config.DB) (*gorm.DB, error) {
	engine, _, err := dsn.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}

	dialector, err := dsn.Dialector(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.New(slowQueryThreshold, cfg.LogQueries),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if engine == dsn.EngineSQLite {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}

		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	log.Info().Str("engine", string(engine)).Msg("database connected")

	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// OpenSessionStorage opens the session backend selected by cfg.StoreURL.
// memory:// returns a nil storage, which makes the session store keep sessions in process.
func OpenSessionStorage(cfg config.Session) (storage fiber.Storage, err error) {
	table := cfg.Table
	if table == "" {
		table = "sessions"
	}

	// the storage constructors panic when the backend is unreachable
	defer func() {
		if r := recover(); r != nil {
			storage = nil
			err = fmt.Errorf("%w: %v", ErrSessionStore, r)
		}
	}()

	storeURL := cfg.StoreURL

	switch {
	case strings.HasPrefix(storeURL, "memory://"):
		log.Warn().Msg("sessions are kept in memory and are lost on restart")

		return nil, nil
	case strings.HasPrefix(storeURL, "redis://"), strings.HasPrefix(storeURL, "rediss://"):
		return sessionredis.New(sessionredis.Config{URL: storeURL}), nil
	case strings.HasPrefix(storeURL, "postgres://"), strings.HasPrefix(storeURL, "postgresql://"):
		return sessionpostgres.New(sessionpostgres.Config{ConnectionURI: storeURL, Table: table}), nil
	case strings.HasPrefix(storeURL, "mysql://"):
		_, conn, err := dsn.Parse(storeURL)
		if err != nil {
			return nil, err
		}

		return sessionmysql.New(sessionmysql.Config{ConnectionURI: conn, Table: table}), nil
	default:
		return nil, ErrUnsupportedSessionStore
	}
}
