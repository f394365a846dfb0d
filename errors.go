package chatbridge

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for client-facing request validation.
// All use prefix "chatbridge:" for identification. Callers should use errors.Is/errors.As.
var (
	ErrMissingToken    = errors.New("chatbridge: missing authorization token")
	ErrMissingMessages = errors.New("chatbridge: messages are required")
	ErrInvalidRequest  = errors.New("chatbridge: request body is not valid JSON")
)

// RequestError ties a client-facing error to the HTTP status it should be reported with.
// Use errors.Is(err, ErrMissingToken) and errors.As(err, &reqErr) to inspect.
type RequestError struct {
	Status int
	Err    error
}

// Error implements error.
func (e *RequestError) Error() string {
	return fmt.Sprintf("chatbridge: request rejected with status %d: %v", e.Status, e.Err)
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *RequestError) Unwrap() error { return e.Err }

// Compile-time check that RequestError implements error.
var _ error = (*RequestError)(nil)

// Reject wraps err with the status code matching its sentinel.
func Reject(err error) *RequestError {
	status := http.StatusBadRequest
	if errors.Is(err, ErrMissingToken) {
		status = http.StatusUnauthorized
	}
	return &RequestError{Status: status, Err: err}
}
