package auth

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrConflict     = errors.New("auth: already exists")
	ErrNotFound     = errors.New("auth: not found")

	// ErrConfiguration marks deployment faults such as missing signing secrets.
	ErrConfiguration = errors.New("auth: configuration error")
	ErrMissingSecret = fmt.Errorf("%w: token secret is not configured", ErrConfiguration)

	// ErrStore wraps failures of the underlying credential store.
	ErrStore = errors.New("auth: store error")

	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
)

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
