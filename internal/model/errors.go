package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies venue failures so callers can decide between retrying,
// re-authenticating and surfacing the failure.
type ErrorKind string

const (
	KindConnection       ErrorKind = "connection"
	KindAuthentication   ErrorKind = "authentication"
	KindRateLimit        ErrorKind = "rate_limit"
	KindOrderRejected    ErrorKind = "order_rejected"
	KindOrderNotFound    ErrorKind = "order_not_found"
	KindUnsupported      ErrorKind = "unsupported_operation"
	KindTransientNetwork ErrorKind = "transient_network"
)

// VenueError is the error type every adapter returns. Venue carries the
// adapter name, Op the logical operation (place_order, cancel_order, ...) and
// Code the venue's own error identifier when one was provided.
type VenueError struct {
	Venue string
	Op    string
	Kind  ErrorKind
	Code  string
	Msg   string
	Err   error
}

func (e *VenueError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %s (%s): %s", e.Venue, e.Op, e.Kind, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Venue, e.Op, e.Kind, e.Msg)
}

func (e *VenueError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying with backoff.
// Authentication failures are deliberately not retryable; retrying a bad
// credential only burns the venue's login attempt budget. Connection errors
// cover malformed responses and failed reachability probes, neither of which
// a repeat request can repair.
func (e *VenueError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTransientNetwork:
		return true
	default:
		return false
	}
}

// WithCode attaches the venue's own error code and returns the error for
// chaining.
func (e *VenueError) WithCode(code string) *VenueError {
	e.Code = code
	return e
}

// NewVenueError builds a VenueError wrapping cause. Msg falls back to the
// cause's message when empty.
func NewVenueError(venue, op string, kind ErrorKind, msg string, cause error) *VenueError {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &VenueError{Venue: venue, Op: op, Kind: kind, Msg: msg, Err: cause}
}

// ErrorKindOf extracts the kind from err, or KindConnection when err is not a
// VenueError.
func ErrorKindOf(err error) ErrorKind {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindConnection
}

// IsRetryable reports whether err should be retried. Non venue errors are
// treated as transient so plain network failures still get retried.
func IsRetryable(err error) bool {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Retryable()
	}
	return err != nil
}
