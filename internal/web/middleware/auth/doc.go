// Package auth provides the authentication middleware for protected routes.
//
// RequireUser resolves the session's user id through an Identity, loads the
// user through Users and puts it into fiber.Locals for the handlers. Requests
// without a bound user get 401 {"error":"unauthenticated"}, never a redirect,
// since the protected routes are JSON endpoints.
//
// Usage:
//
//	router.Get("/api", authmiddleware.RequireUser(sessions, accounts), handler)
package auth
