// Package session keeps the per-browser login state in a server side store.
// The cookie only carries the opaque session id.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"

	"github.com/monolith-auth/monolith-auth/internal/auth"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "session"

	// DefaultExpiration is used when Config.Expiration is not set.
	DefaultExpiration = 24 * time.Hour

	keyState       = "oauth_state"
	keyVerifier    = "oauth_verifier"
	keyRedirectURI = "oauth_redirect_uri"
	keyUserID      = "user_id"

	sessionIDBytes = 32
)

var expiredCookie = time.Unix(0, 0).UTC() //nolint:gochecknoglobals

// Config configures a Manager.
type Config struct {
	// Storage backs the sessions, nil selects fiber's in-memory storage.
	Storage fiber.Storage
	// Expiration is the absolute lifetime counted from the last write.
	Expiration time.Duration
	// Secure marks the cookie https only.
	Secure bool
}

// Manager reads and writes the session of a request.
// Every method loads the session, applies one change and saves it.
type Manager struct {
	store *session.Store
}

// New returns a Manager over cfg.Storage.
func New(cfg Config) *Manager {
	exp := cfg.Expiration
	if exp <= 0 {
		exp = DefaultExpiration
	}

	return &Manager{
		store: session.New(session.Config{
			Storage:        cfg.Storage,
			Expiration:     exp,
			KeyLookup:      "cookie:" + CookieName,
			CookieSecure:   cfg.Secure,
			CookieHTTPOnly: true,
			CookieSameSite: fiber.CookieSameSiteLaxMode,
			KeyGenerator:   newSessionID,
		}),
	}
}

// SavePending stores the in-flight authorization started by /login.
func (m *Manager) SavePending(c *fiber.Ctx, p auth.Pending) error {
	sess, err := m.store.Get(c)
	if err != nil {
		return err
	}

	sess.Set(keyState, p.State)
	sess.Set(keyVerifier, p.Verifier)
	sess.Set(keyRedirectURI, p.RedirectURI)

	return sess.Save()
}

// Pending returns the in-flight authorization or nil when none was started.
func (m *Manager) Pending(c *fiber.Ctx) (*auth.Pending, error) {
	sess, err := m.store.Get(c)
	if err != nil {
		return nil, err
	}

	state, _ := sess.Get(keyState).(string)
	if state == "" {
		return nil, nil
	}

	verifier, _ := sess.Get(keyVerifier).(string)
	redirectURI, _ := sess.Get(keyRedirectURI).(string)

	return &auth.Pending{
		State:       state,
		Verifier:    verifier,
		RedirectURI: redirectURI,
	}, nil
}

// ClearPending drops the in-flight authorization; a bound user is kept.
func (m *Manager) ClearPending(c *fiber.Ctx) error {
	sess, err := m.store.Get(c)
	if err != nil {
		return err
	}

	if sess.Fresh() {
		return nil
	}

	dropPending(sess)

	return sess.Save()
}

// BindUser marks the session as authenticated for id.
// The session id is regenerated so an id known before login is worthless after it.
func (m *Manager) BindUser(c *fiber.Ctx, id uint64) error {
	sess, err := m.store.Get(c)
	if err != nil {
		return err
	}

	if err := sess.Regenerate(); err != nil {
		return err
	}

	dropPending(sess)
	sess.Set(keyUserID, id)

	return sess.Save()
}

// CurrentUserID returns the bound user id, ok is false for anonymous sessions.
func (m *Manager) CurrentUserID(c *fiber.Ctx) (uint64, bool, error) {
	sess, err := m.store.Get(c)
	if err != nil {
		return 0, false, err
	}

	id, ok := sess.Get(keyUserID).(uint64)
	if !ok || id == 0 {
		return 0, false, nil
	}

	return id, true, nil
}

// Clear removes the session from the store and expires the cookie.
// The cookie is expired even when the store fails.
func (m *Manager) Clear(c *fiber.Ctx) error {
	defer m.expireCookie(c)

	sess, err := m.store.Get(c)
	if err != nil {
		return err
	}

	return sess.Destroy()
}

// expireCookie overwrites the deletion cookie of Destroy with a past Expires date,
// which unlike max-age=0 is kept when encryptcookie re-sets response cookies.
func (m *Manager) expireCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Path:     m.store.CookiePath,
		Domain:   m.store.CookieDomain,
		Expires:  expiredCookie,
		Secure:   m.store.CookieSecure,
		HTTPOnly: m.store.CookieHTTPOnly,
		SameSite: m.store.CookieSameSite,
	})
}

func dropPending(sess *session.Session) {
	sess.Delete(keyState)
	sess.Delete(keyVerifier)
	sess.Delete(keyRedirectURI)
}

// GenerateSessionID generates a new secure random session ID.
func GenerateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

func newSessionID() string {
	id, err := GenerateSessionID()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate session ID, falling back to uuid")

		return utils.UUIDv4()
	}

	return id
}
