package auth

import "github.com/Laisky/errors/v2"

// Authentication and authorization failures. All are recoverable at the
// call level and produce a clean rejection, never a crash.
var (
	ErrInvalidAPIKey = errors.New("invalid api key")
	ErrExpiredToken  = errors.New("token expired")
	ErrInvalidToken  = errors.New("invalid token")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrUnknownUser   = errors.New("unknown user")
)
