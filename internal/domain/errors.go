// internal/domain/errors.go
package domain

import "errors"

// ErrUnauthorized is returned by release stores when the API responds with HTTP 401.
// Callers can check for it using errors.Is to report a bad or expired token.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound is returned by release stores when the release or asset does not exist.
var ErrNotFound = errors.New("not found")
