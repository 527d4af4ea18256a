// Package main provides the entry point of monolith-auth.
// It runs a fiber web server that logs users in through an OpenID Connect
// provider, keeps their sessions in a shared store and persists their
// profile with gorm.
package main
