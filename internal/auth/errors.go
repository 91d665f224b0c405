// Package auth protects the relay's admin routes with HMAC-signed JWTs.
package auth

import "errors"

// Sentinel errors for token validation.
var (
	// ErrInvalidToken indicates the token is malformed or has an invalid signature.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token has expired.
	ErrExpiredToken = errors.New("token has expired")

	// ErrInvalidIssuer indicates the token issuer doesn't match the expected value.
	ErrInvalidIssuer = errors.New("invalid token issuer")

	// ErrMissingToken indicates no authentication token was provided.
	ErrMissingToken = errors.New("missing authentication token")

	// ErrNoSecretConfigured indicates the validator was built without a signing secret.
	ErrNoSecretConfigured = errors.New("no admin secret configured")
)
