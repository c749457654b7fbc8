// Package common defines sentinel errors and constants shared by the chat
// server layers. Callers match errors with errors.Is.
package common

import "errors"

var (
	// repository errors
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// service errors
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// conversation membership
	ErrNotParticipant = errors.New("not a conversation participant")

	// media upload
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrMediaTooLarge    = errors.New("media too large")

	// tokens
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// realtime
	ErrConnectionClosed = errors.New("connection closed")
	ErrRegistryStopped  = errors.New("registry stopped")
)
