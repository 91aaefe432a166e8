package core

import "errors"

var (
	// ErrUnauthorized means no verified identity could be established.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the identity is verified but does not own the
	// target chat. Lookup misses map here too, so callers cannot probe
	// for the existence of other users' chats.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput means the request body failed validation.
	ErrInvalidInput = errors.New("invalid input")
)
