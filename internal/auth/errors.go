package auth

import "errors"

var (
	// ErrAuthExchange is returned when the callback can not be turned into tokens.
	// It is always joined with a more specific cause.
	ErrAuthExchange = errors.New("authorization exchange failed")

	// ErrProfileFetch is returned when the userinfo call fails or lacks an email.
	ErrProfileFetch = errors.New("profile fetch failed")

	// ErrProviderUnavailable marks failures where the provider could not be reached
	// or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrNoPendingAuthorization is returned for a callback without a login started in this session.
	ErrNoPendingAuthorization = errors.New("no pending authorization")

	// ErrStateMismatch is returned when the callback state does not match the session.
	ErrStateMismatch = errors.New("state mismatch")

	// ErrMissingCode is returned when the callback carries no authorization code.
	ErrMissingCode = errors.New("missing authorization code")

	// ErrProviderDenied is returned when the provider redirected back with an error parameter.
	ErrProviderDenied = errors.New("provider denied authorization")

	// ErrUnauthenticated is returned when a protected resource is requested without a bound user.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrIncompleteConfig is returned by NewClient when endpoints or credentials are missing.
	ErrIncompleteConfig = errors.New("identity client configuration incomplete")
)
