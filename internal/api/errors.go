package api

import (
	"errors"
	"fmt"
	"net/http"

	"finsession/internal/core"
)

var (
	ErrMissingID   = errors.New("api: missing resource id")
	ErrInvalidArgs = errors.New("api: invalid arguments")
)

// Error is the normalized failure of a request: the remote status code and
// the message meant for the end user. StatusCode is 0 when no response was
// received.
type Error struct {
	StatusCode int
	Message    string
	RequestID  string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return "api request failed: " + e.Message
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ParseError reports a 2xx response whose body does not match the expected
// shape.
type ParseError struct {
	Resource string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response: %v", e.Resource, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Message returns the text shown to the user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	var perr *ParseError
	if errors.As(err, &perr) {
		return "Unexpected response from server"
	}
	return err.Error()
}
