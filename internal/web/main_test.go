package web

import (
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/monolith-auth/monolith-auth/internal/auth"
	"github.com/monolith-auth/monolith-auth/internal/auth/authtest"
	"github.com/monolith-auth/monolith-auth/internal/config"
	"github.com/monolith-auth/monolith-auth/internal/db/controller/user"
	"github.com/monolith-auth/monolith-auth/internal/db/models"
	"github.com/monolith-auth/monolith-auth/internal/web/session"
	"github.com/monolith-auth/monolith-auth/internal/web/session/sessiontest"
)

const baseURL = "http://localhost:8080"

type testEnv struct {
	service *Service
	idp     *authtest.Provider
	db      *gorm.DB
	store   *sessiontest.Storage
	browser *sessiontest.Browser
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	idp := authtest.New(t)

	client, err := auth.NewClient(idp.Config())
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "web.db")), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	store := sessiontest.NewStorage()

	cfg := &config.Config{
		Title: "monolith-auth",
		Webserver: config.Webserver{
			URL:       baseURL,
			SecretKey: "not-so-secret",
			Metrics:   true,
		},
	}

	service, err := New(cfg, Dependencies{
		Provider: client,
		Accounts: auth.NewService(user.NewRepository(db), false),
		Sessions: session.New(session.Config{Storage: store}),
	})
	require.NoError(t, err)

	return &testEnv{
		service: service,
		idp:     idp,
		db:      db,
		store:   store,
		browser: sessiontest.NewBrowser(t, service.App),
	}
}

func annClaims() map[string]any {
	return map[string]any{
		"sub":            "auth0|ann",
		"email":          "a@x.com",
		"email_verified": true,
		"name":           "Ann",
		"picture":        "http://p/ann.png",
	}
}

// startLogin follows /login and returns the authorization URL.
func (e *testEnv) startLogin(t *testing.T) *url.URL {
	t.Helper()

	resp, _ := e.browser.Get("/login")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	u, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	return u
}

// authorize lets the provider log in claims and returns the callback request uri.
func (e *testEnv) authorize(t *testing.T, authURL *url.URL, claims map[string]any) string {
	t.Helper()

	e.idp.NextLogin(claims)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := client.Get(authURL.String())
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusFound, resp.StatusCode)

	cb, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/callback", cb.Path)

	return cb.RequestURI()
}

func (e *testEnv) login(t *testing.T, claims map[string]any) (*http.Response, string) {
	t.Helper()

	return e.browser.Get(e.authorize(t, e.startLogin(t), claims))
}

func (e *testEnv) userCount(t *testing.T) int64 {
	t.Helper()

	var n int64
	require.NoError(t, e.db.Model(&models.User{}).Count(&n).Error)

	return n
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(&config.Config{}, Dependencies{})
	require.ErrorIs(t, err, ErrMissingDependency)
}

func TestHomePage(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.browser.Get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Contains(t, body, `href="/login"`)
	assert.Contains(t, body, `href="/logout"`)
	assert.Contains(t, body, `href="/api"`)
	assert.Contains(t, body, "You are not logged in.")
}

func TestAPIWithoutLogin(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.browser.Get("/api")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"unauthenticated"}`, body)
}

func TestLoginRedirectsToProvider(t *testing.T) {
	env := newTestEnv(t)

	u := env.startLogin(t)

	assert.Equal(t, env.idp.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, authtest.ClientID, u.Query().Get("client_id"))
	assert.Equal(t, "openid profile email", u.Query().Get("scope"))
	assert.Equal(t, baseURL+"/callback", u.Query().Get("redirect_uri"))
	assert.NotEmpty(t, u.Query().Get("state"))
	assert.NotEmpty(t, env.browser.Cookie(session.CookieName))
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.login(t, annClaims())
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, body := env.browser.Get("/api")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"email":"a@x.com","name":"Ann","nickname":null,"picture":"http://p/ann.png"}`, body)
	assert.NotContains(t, body, `"id"`)
	assert.NotContains(t, body, "email_verified")

	_, body = env.browser.Get("/")
	assert.Contains(t, body, "You are logged in.")

	assert.Equal(t, int64(1), env.userCount(t))
}

func TestRepeatedLoginKeepsOneRow(t *testing.T) {
	env := newTestEnv(t)

	for range 3 {
		resp, _ := env.login(t, annClaims())
		require.Equal(t, http.StatusFound, resp.StatusCode)
	}

	assert.Equal(t, int64(1), env.userCount(t))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.login(t, annClaims())
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, _ = env.browser.Get("/logout")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	u, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, env.idp.URL+"/v2/logout", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, baseURL+"/", u.Query().Get("returnTo"))
	assert.Equal(t, authtest.ClientID, u.Query().Get("client_id"))

	setCookie := resp.Header.Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(setCookie, session.CookieName+"="), setCookie)
	assert.Contains(t, setCookie, "expires=Thu, 01 Jan 1970 00:00:00 GMT")
	assert.Contains(t, setCookie, "HttpOnly")

	assert.Empty(t, env.browser.Cookie(session.CookieName))
	assert.Zero(t, env.store.Len())

	resp, _ = env.browser.Get("/api")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionLifetimeIsFixedFromLastWrite(t *testing.T) {
	env := newTestEnv(t)

	_ = env.startLogin(t)
	for _, ttl := range env.store.TTLs() {
		assert.Equal(t, session.DefaultExpiration, ttl)
	}

	resp, _ := env.login(t, annClaims())
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, 1, env.store.Len())

	for _, ttl := range env.store.TTLs() {
		assert.Equal(t, session.DefaultExpiration, ttl)
	}

	writes := env.store.Writes()

	for _, target := range []string{"/", "/api", "/", "/api"} {
		resp, _ := env.browser.Get(target)
		require.Equal(t, http.StatusOK, resp.StatusCode, target)
		assert.Empty(t, resp.Header.Values("Set-Cookie"), target)
	}

	assert.Equal(t, writes, env.store.Writes(), "reads must not extend the session")
}

func TestLogoutReplayedCookieIsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.login(t, annClaims())
	require.Equal(t, http.StatusFound, resp.StatusCode)

	cookie := env.browser.Cookie(session.CookieName)

	_, _ = env.browser.Get("/logout")

	env.browser.SetCookie(session.CookieName, cookie)

	resp, _ = env.browser.Get("/api")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCallbackFailures(t *testing.T) {
	testCases := []struct {
		name           string
		callback       func(t *testing.T, env *testEnv) string
		expectedStatus int
	}{
		{
			name: "invalid code",
			callback: func(t *testing.T, env *testEnv) string {
				state := env.startLogin(t).Query().Get("state")

				return "/callback?code=expired&state=" + url.QueryEscape(state)
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "state mismatch",
			callback: func(t *testing.T, env *testEnv) string {
				cb := env.authorize(t, env.startLogin(t), annClaims())

				return strings.Replace(cb, "state=", "state=forged", 1)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "no login started",
			callback: func(_ *testing.T, env *testEnv) string {
				return "/callback?code=" + env.idp.Issue(annClaims()) + "&state=abc"
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing code",
			callback: func(t *testing.T, env *testEnv) string {
				state := env.startLogin(t).Query().Get("state")

				return "/callback?state=" + url.QueryEscape(state)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "provider denied",
			callback: func(t *testing.T, env *testEnv) string {
				state := env.startLogin(t).Query().Get("state")

				return "/callback?error=access_denied&error_description=cancelled&state=" + url.QueryEscape(state)
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "profile fetch fails",
			callback: func(t *testing.T, env *testEnv) string {
				cb := env.authorize(t, env.startLogin(t), annClaims())
				env.idp.FailUserInfo(http.StatusInternalServerError)

				return cb
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name: "profile without email",
			callback: func(t *testing.T, env *testEnv) string {
				return env.authorize(t, env.startLogin(t), map[string]any{"sub": "auth0|x", "name": "X"})
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name: "provider unavailable",
			callback: func(t *testing.T, env *testEnv) string {
				env.idp.FailTokens(http.StatusServiceUnavailable)

				for range 3 {
					state := env.startLogin(t).Query().Get("state")
					resp, _ := env.browser.Get("/callback?code=x&state=" + url.QueryEscape(state))
					require.Equal(t, http.StatusBadGateway, resp.StatusCode)
				}

				state := env.startLogin(t).Query().Get("state")

				return "/callback?code=x&state=" + url.QueryEscape(state)
			},
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)

			resp, body := env.browser.Get(tc.callback(t, env))
			assert.Equal(t, tc.expectedStatus, resp.StatusCode)
			assert.Contains(t, body, `class="error"`)
			assert.Zero(t, env.userCount(t), "a failed callback must not create a user")

			resp, _ = env.browser.Get("/api")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "a failed callback must not authenticate")
		})
	}
}

func TestCallbackCannotBeReplayed(t *testing.T) {
	env := newTestEnv(t)

	cb := env.authorize(t, env.startLogin(t), annClaims())

	resp, _ := env.browser.Get(cb)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, _ = env.browser.Get(cb)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "the pending state is consumed by the first callback")
}

func TestSessionStoreFailure(t *testing.T) {
	env := newTestEnv(t)

	cb := env.authorize(t, env.startLogin(t), annClaims())
	env.store.Fail(errors.New("store down"))

	resp, _ := env.browser.Get(cb)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, _ = env.browser.Get("/api")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, _ = env.browser.Get("/login")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, _ = env.browser.Get("/logout")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Set-Cookie"), "expires=Thu, 01 Jan 1970 00:00:00 GMT")
	assert.Empty(t, env.browser.Cookie(session.CookieName))

	env.store.Fail(nil)

	resp, _ = env.browser.Get("/api")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, env.userCount(t))
}

func TestSessionCookieIsEncrypted(t *testing.T) {
	env := newTestEnv(t)

	_ = env.startLogin(t)

	cookie := env.browser.Cookie(session.CookieName)
	require.NotEmpty(t, cookie)
	assert.NotRegexp(t, `^[0-9a-f]{64}$`, cookie, "the raw session id must not leave the server")

	env.browser.SetCookie(session.CookieName, "tampered")

	resp, _ := env.browser.Get("/api")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCheckAlive(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.browser.Get(CheckAlivePath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)

	env.service.alive.Store(false)

	resp, _ = env.browser.Get(CheckAlivePath)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.login(t, annClaims())
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, body := env.browser.Get(MetricsPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `logins_total{result="success"}`)
}

func TestDeriveCookieKey(t *testing.T) {
	a, err := deriveCookieKey("secret")
	require.NoError(t, err)

	b, err := deriveCookieKey("secret")
	require.NoError(t, err)

	c, err := deriveCookieKey("other")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 44)

	_, err = deriveCookieKey("")
	assert.Error(t, err)
}
