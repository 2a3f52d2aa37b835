package model

import (
	"context"
	"errors"
	"fmt"
)

// StatusError is returned by clients for failed provider calls. StatusCode is
// the HTTP status of the upstream answer, or 0 when the request never got a
// response (network failure).
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: transport error: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying: network errors and
// 5xx answers are, 4xx (bad request, schema rejection, auth) never are.
func (e *StatusError) Transient() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// IsTransient classifies an arbitrary client error. Context cancellation is
// never transient; unknown errors are treated as transport failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return true
}
