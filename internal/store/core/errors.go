package core

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict maps the store's unique-constraint violation on
	// (provider, uid). Callers must treat it as "identity already exists"
	// and retry as a lookup, never surface it as a generic failure.
	ErrConflict = errors.New("conflict")

	ErrInvalid = errors.New("invalid")
)
