// Package sessiontest provides an in-memory session storage and a cookie keeping
// client for testing fiber apps that use sessions.
package sessiontest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

// Storage is a minimal in-memory implementation of fiber.Storage.
// Missing keys read as nil, the way the real backends report them.
type Storage struct {
	mu     sync.RWMutex
	data   map[string][]byte
	ttl    map[string]time.Duration
	writes int
	err    error
}

var _ fiber.Storage = (*Storage)(nil)

// NewStorage returns an empty Storage.
func NewStorage() *Storage {
	return &Storage{
		data: make(map[string][]byte),
		ttl:  make(map[string]time.Duration),
	}
}

// Fail makes every following call return err; nil restores normal behaviour.
func (s *Storage) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
}

// Len returns the number of stored sessions.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

// Writes returns the number of successful Set calls.
func (s *Storage) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.writes
}

// TTLs returns the expiration each stored key was last written with.
func (s *Storage) TTLs() map[string]time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Duration, len(s.ttl))
	for k, v := range s.ttl {
		out[k] = v
	}

	return out
}

// Get implements fiber.Storage.
func (s *Storage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return nil, s.err
	}

	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}

	out := make([]byte, len(v))
	copy(out, v)

	return out, nil
}

// Set implements fiber.Storage.
func (s *Storage) Set(key string, val []byte, exp time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	buf := make([]byte, len(val))
	copy(buf, val)
	s.data[key] = buf
	s.ttl[key] = exp
	s.writes++

	return nil
}

// Delete implements fiber.Storage.
func (s *Storage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	delete(s.data, key)
	delete(s.ttl, key)

	return nil
}

// Reset implements fiber.Storage.
func (s *Storage) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string][]byte)
	s.ttl = make(map[string]time.Duration)

	return nil
}

// Close implements fiber.Storage.
func (s *Storage) Close() error { return nil }

// Browser sends requests to a fiber app and keeps the cookies it sets.
type Browser struct {
	t       testing.TB
	app     *fiber.App
	cookies map[string]*http.Cookie
}

// NewBrowser returns a Browser without cookies.
func NewBrowser(t testing.TB, app *fiber.App) *Browser {
	t.Helper()

	return &Browser{
		t:       t,
		app:     app,
		cookies: make(map[string]*http.Cookie),
	}
}

// Get requests target and returns the response with its body read.
func (b *Browser) Get(target string) (*http.Response, string) {
	b.t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := b.app.Test(req, -1)
	require.NoError(b.t, err)

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)

	now := time.Now()

	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) || c.Value == "" {
			delete(b.cookies, c.Name)

			continue
		}

		b.cookies[c.Name] = c
	}

	return resp, string(body)
}

// Cookie returns the value of the named cookie, empty when not set.
func (b *Browser) Cookie(name string) string {
	if c, ok := b.cookies[name]; ok {
		return c.Value
	}

	return ""
}

// SetCookie replaces the named cookie.
func (b *Browser) SetCookie(name, value string) {
	b.cookies[name] = &http.Cookie{Name: name, Value: value}
}
