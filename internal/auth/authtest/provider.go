// Package authtest provides an in-process identity provider for tests.
package authtest

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/monolith-auth/monolith-auth/internal/config"
)

const (
	// ClientID is the client id the provider accepts.
	ClientID = "test-client"
	// ClientSecret is the client secret the provider accepts.
	ClientSecret = "test-secret"

	authorizePath = "/authorize"
	tokenPath     = "/oauth/token"
	userInfoPath  = "/userinfo"
)

type grant struct {
	claims    map[string]any
	challenge string
}

// Provider fakes the authorize, token and userinfo endpoints.
// Codes are single use, access tokens map to the claims the code was issued for.
type Provider struct {
	*httptest.Server

	mu             sync.Mutex
	grants         map[string]grant
	tokens         map[string]map[string]any
	next           map[string]any
	tokenStatus    int
	userInfoStatus int
	tokenCalls     int
	userInfoCalls  int
}

// New starts a Provider that is closed with the test.
func New(t testing.TB) *Provider {
	t.Helper()

	p := &Provider{
		grants: make(map[string]grant),
		tokens: make(map[string]map[string]any),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(authorizePath, p.authorize)
	mux.HandleFunc(tokenPath, p.token)
	mux.HandleFunc(userInfoPath, p.userInfo)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)

	return p
}

// Config returns client settings pointing at the provider.
func (p *Provider) Config() config.Auth0 {
	return config.Auth0{
		ClientID:       ClientID,
		ClientSecret:   ClientSecret,
		APIBaseURL:     p.URL,
		AccessTokenURL: p.URL + tokenPath,
		AuthorizeURL:   p.URL + authorizePath,
		Scopes:         []string{"openid", "profile", "email"},
		Timeout:        2 * time.Second,
		Breaker: config.Breaker{
			MaxRequests:         1,
			OpenTimeout:         time.Minute,
			ConsecutiveFailures: 3,
		},
	}
}

// Issue returns a fresh code that exchanges to a token for claims.
func (p *Provider) Issue(claims map[string]any) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	code := randomHex()
	p.grants[code] = grant{claims: claims}

	return code
}

// NextLogin sets the claims the next /authorize visit issues a code for.
func (p *Provider) NextLogin(claims map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next = claims
}

// FailTokens makes the token endpoint answer status; 0 restores normal behaviour.
func (p *Provider) FailTokens(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tokenStatus = status
}

// FailUserInfo makes the userinfo endpoint answer status; 0 restores normal behaviour.
func (p *Provider) FailUserInfo(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.userInfoStatus = status
}

// TokenCalls returns how many requests reached the token endpoint.
func (p *Provider) TokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.tokenCalls
}

// UserInfoCalls returns how many requests reached the userinfo endpoint.
func (p *Provider) UserInfoCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.userInfoCalls
}

func (p *Provider) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("client_id") != ClientID || q.Get("response_type") != "code" {
		http.Error(w, "bad authorization request", http.StatusBadRequest)

		return
	}

	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.Host == "" {
		http.Error(w, "bad redirect_uri", http.StatusBadRequest)

		return
	}

	p.mu.Lock()
	claims := p.next
	code := randomHex()
	p.grants[code] = grant{claims: claims, challenge: q.Get("code_challenge")}
	p.mu.Unlock()

	back := redirect.Query()
	back.Set("code", code)
	back.Set("state", q.Get("state"))
	redirect.RawQuery = back.Encode()

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.tokenCalls++
	status := p.tokenStatus
	p.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "server_error"})

		return
	}

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})

		return
	}

	if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})

		return
	}

	if r.PostForm.Get("grant_type") != "authorization_code" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})

		return
	}

	p.mu.Lock()
	code := r.PostForm.Get("code")
	g, ok := p.grants[code]
	delete(p.grants, code)
	p.mu.Unlock()

	verifier := r.PostForm.Get("code_verifier")
	if !ok || verifier == "" || (g.challenge != "" && challenge(verifier) != g.challenge) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "invalid or expired authorization code",
		})

		return
	}

	accessToken := randomHex()

	p.mu.Lock()
	p.tokens[accessToken] = g.claims
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (p *Provider) userInfo(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.userInfoCalls++
	status := p.userInfoStatus
	claims, ok := p.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	p.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)

		return
	}

	if !ok {
		http.Error(w, "invalid token", http.StatusUnauthorized)

		return
	}

	writeJSON(w, http.StatusOK, claims)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))

	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomHex() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)

	return hex.EncodeToString(b)
}
