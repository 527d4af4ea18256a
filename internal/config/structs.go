package config

import (
	"time"

	"github.com/monolith-auth/monolith-auth/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	Title     string
	DB        DB
	Log       logger.Log
	Auth0     Auth0
	Webserver Webserver
}

// DB holds the database settings.
type DB struct {
	// URL selects driver and target, e.g. sqlite://./db.sqlite3, postgres://..., mysql://...
	URL          string `validate:"required"`
	MaxOpenConns int
	MaxIdleConns int
	LogQueries   bool // log every statement at debug level
}

// Auth0 holds the identity provider client settings.
type Auth0 struct {
	ClientID       string `validate:"required"`
	ClientSecret   string `validate:"required"`
	APIBaseURL     string `validate:"required,url"`
	AccessTokenURL string `validate:"required,url"`
	AuthorizeURL   string `validate:"required,url"`
	Scopes         []string      // added to the always requested openid profile email
	Timeout        time.Duration // bound for each outbound provider call

	// RefreshProfileOnLogin overwrites stored name, nickname, picture and
	// email_verified with the provider's values on every login.
	RefreshProfileOnLogin bool

	Breaker Breaker
}

// Breaker configures the circuit breaker guarding provider calls.
type Breaker struct {
	MaxRequests         uint32        // requests allowed while half-open
	Interval            time.Duration // counter reset period while closed, 0 = never
	OpenTimeout         time.Duration // how long the breaker stays open
	ConsecutiveFailures uint32        // failures that trip the breaker
}

// Session settings.
type Session struct {
	// StoreURL selects the backing store: redis://, postgres://, mysql:// or memory://
	StoreURL   string `validate:"required"`
	Table      string // table name for sql backed stores
	ExpiryTime time.Duration
}

// Webserver implement webserver settings.
type Webserver struct {
	DisableRecover bool    // disable recover middleware
	Metrics        bool    // expose /metrics
	Port           int     `validate:"required,min=1,max=65535"` // listening port for the webserver
	ShutDownTime   int     // wait time for shutdown
	URL            string  `validate:"required,url"` // external base url, used for callback and logout return
	SecretKey      string  `validate:"required"`     // secret the cookie encryption key is derived from
	Session        Session // session settings
}
