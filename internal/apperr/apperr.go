// Package apperr defines the error taxonomy shared by the transport and
// offline layers. Callers classify failures with errors.As so REST call
// sites, the store error field, and the UI indicator all agree on what
// went wrong.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError indicates the transport was unreachable or timed out.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Network wraps err as a NetworkError for the given operation.
func Network(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// ServerError indicates a non-2xx REST response.
type ServerError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	msg := e.Body
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, msg)
}

// Server builds a ServerError from a response status and body excerpt.
func Server(op string, status int, body string) *ServerError {
	const maxExcerpt = 256
	if len(body) > maxExcerpt {
		body = body[:maxExcerpt] + "...(truncated)"
	}
	return &ServerError{Op: op, StatusCode: status, Body: body}
}

// AuthError indicates the session is no longer usable: a 401 whose
// refresh-and-retry cycle also failed.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("session terminated: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ChannelError indicates a push-channel level failure (an error frame or a
// broken connection). There is no caller to reject, so these surface only
// through the store error field and the connection flag.
type ChannelError struct {
	Reason string
}

func (e *ChannelError) Error() string {
	return "push channel error: " + e.Reason
}

// ValidationError indicates the caller passed an out-of-contract argument.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound reports whether err is a ServerError with status 404.
func NotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
