package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("backend: not found")
	// ErrValidation indicates the backend rejected the payload.
	ErrValidation = errors.New("backend: validation failed")
	// ErrNetwork indicates the request never produced a usable response.
	ErrNetwork = errors.New("backend: network failure")
)

// APIError attaches the HTTP status and server detail to one of the sentinel
// kinds above. errors.Is matches the kind.
type APIError struct {
	Kind   error
	Status int
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v (status %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%v (status %d)", e.Kind, e.Status)
}

// Unwrap allows errors.Is to match the sentinel kind.
func (e *APIError) Unwrap() error {
	return e.Kind
}
