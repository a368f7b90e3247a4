package auth

import (
	"errors"
	"fmt"
)

// Kind categorizes authorization failures. The kinds mirror the phases
// of the flow so callers can tell a recoverable refresh failure from a
// fatal one without string matching.
type Kind string

const (
	// KindDiscovery means no usable metadata was found. Not retried
	// within an attempt; callers restart the whole authorization.
	KindDiscovery Kind = "discovery"

	// KindRegistration means dynamic client registration was rejected
	// or unsupported. Fatal to the attempt.
	KindRegistration Kind = "registration"

	// KindInvalidState means the CSRF state echoed through the redirect
	// did not match the stored one. Fatal; the code must not be used.
	KindInvalidState Kind = "invalid_state"

	// KindAuthorizationDenied means the provider returned an explicit
	// error on the redirect, or no code at all.
	KindAuthorizationDenied Kind = "authorization_denied"

	// KindAuthorizationTimeout means no callback arrived within the
	// configured window.
	KindAuthorizationTimeout Kind = "authorization_timeout"

	// KindTokenExchange means the authorization-code grant failed.
	// Fatal to the attempt.
	KindTokenExchange Kind = "token_exchange"

	// KindTokenRefresh means the refresh-token grant failed. Expected
	// for expired or revoked refresh tokens; callers fall back to the
	// full flow.
	KindTokenRefresh Kind = "token_refresh"
)

// Error is a categorized authorization error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError creates an Error of the given kind.
func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// wrapError wraps err with the given kind and context message.
func wrapError(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err is (or wraps) an auth Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind == kind
	}
	return false
}
