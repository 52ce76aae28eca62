package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized matches any *Error carrying a 401 status.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx response from a backend service. Message is the
// human-readable message extracted from the response body, suitable for
// showing to a user.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (status %d)", e.StatusCode)
}

// Is reports ErrUnauthorized for 401 responses so callers can use
// errors.Is(err, api.ErrUnauthorized).
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}
