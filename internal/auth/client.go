package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/monolith-auth/monolith-auth/internal/config"
)

const (
	userInfoPath = "/userinfo"
	logoutPath   = "/v2/logout"

	stateTokenLength = 32
	defaultTimeout   = 10 * time.Second
	breakerName      = "identity-provider"
)

// RequiredScopes are always requested, configured scopes are added after them.
var RequiredScopes = []string{oidc.ScopeOpenID, "profile", "email"}

// Pending is the per-login state kept in the session between /login and /callback.
type Pending struct {
	State       string
	RedirectURI string
	Verifier    string
}

// AuthorizationRequest is the outcome of BeginAuthorization.
type AuthorizationRequest struct {
	URL     string
	Pending Pending
}

// Callback holds the query parameters the provider sends to the redirect URI.
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Profile is the subset of userinfo claims the application stores.
type Profile struct {
	Email         string  `json:"email"`
	EmailVerified *bool   `json:"email_verified"`
	Name          *string `json:"name"`
	Nickname      *string `json:"nickname"`
	Picture       *string `json:"picture"`
}

// Client talks to the identity provider. It is safe for concurrent use.
type Client struct {
	clientID   string
	apiBaseURL string
	oauth2     oauth2.Config
	provider   *oidc.Provider
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[any]
}

// NewClient builds a Client from the provider configuration.
// No network call is made; the provider endpoints are taken as configured.
func NewClient(cfg config.Auth0) (*Client, error) {
	base := strings.TrimSuffix(cfg.APIBaseURL, "/")
	if cfg.ClientID == "" || base == "" || cfg.AuthorizeURL == "" || cfg.AccessTokenURL == "" {
		return nil, ErrIncompleteConfig
	}

	scopes := mergeScopes(RequiredScopes, cfg.Scopes)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}

	providerConfig := &oidc.ProviderConfig{
		IssuerURL:   base + "/",
		AuthURL:     cfg.AuthorizeURL,
		TokenURL:    cfg.AccessTokenURL,
		UserInfoURL: base + userInfoPath,
	}

	return &Client{
		clientID:   cfg.ClientID,
		apiBaseURL: base,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.AccessTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: scopes,
		},
		provider:   providerConfig.NewProvider(oidc.ClientContext(context.Background(), httpClient)),
		httpClient: httpClient,
		breaker:    newBreaker(cfg.Breaker),
	}, nil
}

// BeginAuthorization returns the provider URL to redirect the browser to and the
// values that must be kept in the session until the callback arrives.
func (c *Client) BeginAuthorization(redirectURI string) (AuthorizationRequest, error) {
	state, err := GenerateStateToken()
	if err != nil {
		return AuthorizationRequest{}, err
	}

	verifier := oauth2.GenerateVerifier()

	conf := c.oauth2
	conf.RedirectURL = redirectURI

	return AuthorizationRequest{
		URL: conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		Pending: Pending{
			State:       state,
			RedirectURI: redirectURI,
			Verifier:    verifier,
		},
	}, nil
}

// CompleteAuthorization validates the callback against the pending state and
// exchanges the code for tokens. Every failure wraps ErrAuthExchange.
func (c *Client) CompleteAuthorization(ctx context.Context, pending *Pending, cb Callback) (*oauth2.Token, error) {
	if cb.Error != "" {
		return nil, fmt.Errorf("%w: %w: %s %s", ErrAuthExchange, ErrProviderDenied, cb.Error, cb.ErrorDescription)
	}

	if pending == nil || pending.State == "" {
		return nil, fmt.Errorf("%w: %w", ErrAuthExchange, ErrNoPendingAuthorization)
	}

	if cb.State == "" || subtle.ConstantTimeCompare([]byte(cb.State), []byte(pending.State)) != 1 {
		return nil, fmt.Errorf("%w: %w", ErrAuthExchange, ErrStateMismatch)
	}

	if cb.Code == "" {
		return nil, fmt.Errorf("%w: %w", ErrAuthExchange, ErrMissingCode)
	}

	conf := c.oauth2
	conf.RedirectURL = pending.RedirectURI

	res, err := c.breaker.Execute(func() (any, error) {
		return conf.Exchange(c.clientContext(ctx), cb.Code, oauth2.VerifierOption(pending.Verifier))
	})
	if err != nil {
		if unavailable(err) {
			return nil, fmt.Errorf("%w: %w: %w", ErrAuthExchange, ErrProviderUnavailable, err)
		}

		return nil, fmt.Errorf("%w: %w", ErrAuthExchange, err)
	}

	token, ok := res.(*oauth2.Token)
	if !ok || token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty token response", ErrAuthExchange)
	}

	return token, nil
}

// FetchProfile reads the userinfo claims for token. Every failure wraps ErrProfileFetch.
func (c *Client) FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error) {
	if token == nil || token.AccessToken == "" {
		return Profile{}, fmt.Errorf("%w: no access token", ErrProfileFetch)
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.provider.UserInfo(c.clientContext(ctx), oauth2.StaticTokenSource(token))
	})
	if err != nil {
		if unavailable(err) {
			return Profile{}, fmt.Errorf("%w: %w: %w", ErrProfileFetch, ErrProviderUnavailable, err)
		}

		return Profile{}, fmt.Errorf("%w: %w", ErrProfileFetch, err)
	}

	info, ok := res.(*oidc.UserInfo)
	if !ok || info == nil {
		return Profile{}, fmt.Errorf("%w: empty userinfo response", ErrProfileFetch)
	}

	var p Profile
	if err := info.Claims(&p); err != nil {
		return Profile{}, fmt.Errorf("%w: decode claims: %w", ErrProfileFetch, err)
	}

	p.Email = strings.TrimSpace(p.Email)
	if p.Email == "" {
		return Profile{}, fmt.Errorf("%w: email claim missing", ErrProfileFetch)
	}

	return p, nil
}

// LogoutURL returns the provider's logout endpoint which redirects back to returnTo.
func (c *Client) LogoutURL(returnTo string) string {
	params := url.Values{}
	params.Set("returnTo", returnTo)
	params.Set("client_id", c.clientID)

	return c.apiBaseURL + logoutPath + "?" + params.Encode()
}

// BreakerState reports the circuit breaker state, e.g. "closed" or "open".
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, c.httpClient)
}

func mergeScopes(required, extra []string) []string {
	scopes := make([]string, 0, len(required)+len(extra))
	seen := make(map[string]struct{}, cap(scopes))

	for _, s := range append(append([]string{}, required...), extra...) {
		s = strings.TrimSpace(s)
		if _, ok := seen[s]; ok || s == "" {
			continue
		}

		seen[s] = struct{}{}
		scopes = append(scopes, s)
	}

	return scopes
}

func newBreaker(cfg config.Breaker) *gobreaker.CircuitBreaker[any] {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || rejected(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("identity provider circuit breaker changed state")
		},
	})
}

// rejected reports whether the provider answered and refused the request.
// Such answers say nothing about provider health.
func rejected(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode >= http.StatusBadRequest && re.Response.StatusCode < http.StatusInternalServerError
	}

	return false
}

// unavailable reports whether the provider could not be reached or failed itself.
func unavailable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode >= http.StatusInternalServerError
	}

	var ue *url.Error

	return errors.As(err, &ue)
}

// GenerateStateToken creates a random hex string for the OAuth2 state parameter.
func GenerateStateToken() (string, error) {
	b := make([]byte, stateTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	return hex.EncodeToString(b), nil
}
