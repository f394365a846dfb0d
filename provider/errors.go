package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for provider calls.
var (
	ErrTransport  = errors.New("provider: transport failure")
	ErrHTTPStatus = errors.New("provider: unexpected HTTP status")
	ErrDecode     = errors.New("provider: malformed response")
)

// StatusError is a non-2xx provider response.
// Use errors.Is(err, ErrHTTPStatus) and errors.As(err, &statusErr) to inspect.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("provider: %s returned %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Unwrap returns ErrHTTPStatus for errors.Is.
func (e *StatusError) Unwrap() error { return ErrHTTPStatus }

// Compile-time check that StatusError implements error.
var _ error = (*StatusError)(nil)

// NewStatusError builds a StatusError with a readable message extracted from body.
func NewStatusError(providerName string, statusCode int, body []byte) *StatusError {
	return &StatusError{Provider: providerName, StatusCode: statusCode, Message: ParseErrorMessage(statusCode, body)}
}

// ParseErrorMessage extracts an error message from a JSON error body, falling back to a
// description of the status code.
func ParseErrorMessage(statusCode int, body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		for _, msg := range []string{errResp.Error.Message, errResp.Message, errResp.Msg} {
			if msg != "" {
				return msg
			}
		}
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return "authentication failed, check the token"
	case http.StatusForbidden:
		return "access denied"
	case http.StatusNotFound:
		return "endpoint not found"
	case http.StatusTooManyRequests:
		return "rate limited, too many requests"
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
		return text
	}
	if text := http.StatusText(statusCode); text != "" {
		return strings.ToLower(text)
	}
	return fmt.Sprintf("status %d", statusCode)
}
