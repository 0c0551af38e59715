package domain

import "fmt"

// Error types for consistent error handling across the client.
// The transport classifies every non-2xx response into exactly one of
// these; the sync core decides what reaches the view based on the type.

// ErrUnauthorized indicates a 401/403 response. It is a session event,
// not a display error: the session manager invalidates the credential
// and the view is left untouched.
type ErrUnauthorized struct {
	Status  int
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("unauthorized (%d)", e.Status)
}

// ErrValidation indicates a non-auth 4xx: the server rejected the input.
// Message carries the server's human-readable explanation.
type ErrValidation struct {
	Status  int
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request rejected (%d)", e.Status)
}

// ErrTransient indicates a network failure or a 5xx. Not retried
// automatically; the user re-triggers manually.
type ErrTransient struct {
	Status  int // 0 for network-level failures
	Message string
	Err     error
}

func (e *ErrTransient) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("request failed (%d)", e.Status)
}

func (e *ErrTransient) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (dev server storage layer).
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrConflict indicates a resource already exists (e.g. duplicate username).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
