// Package common defines shared constants and sentinel errors used across
// the provisioning core, the HTTP API and the admin CLI. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Lookup errors.
	ErrorNotFound = errors.New("not found")

	// Provisioning errors.
	ErrorAlreadyExists   = errors.New("already exists")
	ErrorExternalIDTaken = errors.New("external id already linked")
	ErrorInvalidUsername = errors.New("invalid username")
	ErrorMalformedConfig = errors.New("malformed proxy configuration")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Configuration errors.
	ErrorInsecureSecret = errors.New("secret key is empty or left at its default")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
