// Package auth implements the identity provider side of the login flow.
//
// Client wraps the provider's OAuth2 authorization-code endpoints and the
// OIDC userinfo endpoint:
//   - BeginAuthorization builds the authorization redirect (state + PKCE)
//   - CompleteAuthorization validates the callback and exchanges the code
//   - FetchProfile reads the user's claims with the access token
//   - LogoutURL builds the provider's SSO logout redirect
//
// Outbound calls use a bounded timeout and share one circuit breaker, so an
// unavailable provider fails requests fast instead of piling them up. There
// are no retries.
//
// Service turns a fetched Profile into a stored user: it looks the email up,
// creates the row when missing and treats a unique-constraint conflict from a
// concurrent first login as "already created" by re-reading the row.
package auth
