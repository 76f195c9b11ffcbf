// Package common defines shared sentinel errors and small helpers used across
// the CipherRoom client and relay. Callers should use errors.Is to match the
// sentinel values.
package common

import "errors"

var (
	// Validation errors (handled locally, no network call).
	ErrValidation   = errors.New("validation error")
	ErrEmptyMessage = errors.New("message is empty")

	// Session lifecycle errors.
	ErrNotJoined      = errors.New("not joined to a room")
	ErrJoinSuperseded = errors.New("join superseded by a newer session")

	// Transport errors.
	ErrClosed      = errors.New("connection closed")
	ErrUnavailable = errors.New("relay unavailable")

	// Relay-side errors.
	ErrBadRequest = errors.New("bad request")
)
