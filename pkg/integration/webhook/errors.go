package webhook

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned for endpoints that have no URL.
var ErrNotConfigured = errors.New("webhook: endpoint not configured")

// AttemptError describes one failed delivery attempt.
type AttemptError struct {
	Attempt    int
	StatusCode int
	Status     string
	Timeout    bool
	Err        error
}

func (e *AttemptError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("attempt %d: request timed out", e.Attempt)
	case e.StatusCode != 0:
		return fmt.Sprintf("attempt %d: HTTP %d: %s", e.Attempt, e.StatusCode, e.Status)
	default:
		return fmt.Sprintf("attempt %d: %v", e.Attempt, e.Err)
	}
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// DeliveryError is returned once the retry budget of a Send call is exhausted
// or the caller's context ends between attempts.
type DeliveryError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook %s: delivery failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of the last attempt, or 0 if none was received.
func (e *DeliveryError) StatusCode() int {
	var ae *AttemptError
	if errors.As(e.Err, &ae) {
		return ae.StatusCode
	}
	return 0
}

// IsTimeout reports whether err was caused by an attempt exceeding its timeout.
func IsTimeout(err error) bool {
	var ae *AttemptError
	return errors.As(err, &ae) && ae.Timeout
}

// IsTerminal reports whether err is an exhausted delivery.
func IsTerminal(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && !errors.Is(err, context.Canceled)
}

// StatusCode returns the HTTP status of the last attempt behind err, or 0.
func StatusCode(err error) int {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}
