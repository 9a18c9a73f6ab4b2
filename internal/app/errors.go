package app

import "errors"

var (
	// ErrSessionNotFound covers both missing sessions and sessions owned by
	// someone else; callers cannot distinguish the two.
	ErrSessionNotFound = errors.New("session not found")

	// ErrValidation marks structurally invalid requests; handlers translate
	// it to a 400 response.
	ErrValidation = errors.New("invalid request")
)
