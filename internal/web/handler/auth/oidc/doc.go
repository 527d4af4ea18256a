// Package oidc provides the handlers of the authorization-code login flow.
//
// The flow includes:
//   - Login: state and PKCE verifier are kept in the session, the browser is
//     redirected to the provider's authorization endpoint
//   - Callback: state check, code exchange, profile fetch, user upsert and
//     binding the session to the user
//
// A failed callback renders an error page and never binds a user:
//
//	400  state or parameter problems
//	401  the provider denied access or rejected the code
//	502  profile fetch failed or the provider is unavailable
//	500  session or database failures
//
// Routes:
//
//	GET /login    - initiate login
//	GET /callback - handle provider callback
package oidc
