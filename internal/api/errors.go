// errors.go - Structured errors for backend responses
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// StatusError represents a failed backend response. It covers non-2xx replies
// as well as 2xx replies whose body reports a failure.
type StatusError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// NewHTTPStatusError creates an error for a non-2xx response
func NewHTTPStatusError(status int, body string) *StatusError {
	return &StatusError{
		Status:  status,
		Code:    "HTTP_ERROR",
		Message: http.StatusText(status),
		Details: body,
	}
}

// NewBackendError creates an error for a 2xx response whose body reports failure
func NewBackendError(status int, message string) *StatusError {
	if message == "" {
		message = "backend reported an error"
	}
	return &StatusError{
		Status:  status,
		Code:    "BACKEND_ERROR",
		Message: message,
	}
}

// NewDecodeError creates an error for a response body that is not valid JSON
func NewDecodeError(status int, cause error) *StatusError {
	err := &StatusError{
		Status:  status,
		Code:    "DECODE_ERROR",
		Message: "invalid response body",
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// IsTransient reports whether err is a network failure or a retryable status.
// The results loader uses it to word its failure entry; retry policy does not depend on it.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ne net.Error
	return errors.As(err, &ne)
}
