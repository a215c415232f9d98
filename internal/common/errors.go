// Package common defines shared constants and error kinds used across
// authkeeper layers. Callers should use errors.Is to match the kind
// sentinels and KindOf to obtain the stable kind string for responses.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level error kinds.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorConflict     = errors.New("conflict")
	ErrorInvalidInput = errors.New("invalid input")
	ErrorInternal     = errors.New("internal error")

	// Token errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Stable kind strings exposed to clients.
const (
	KindUnauthorized = "UNAUTHORIZED"
	KindForbidden    = "FORBIDDEN"
	KindConflict     = "CONFLICT"
	KindInvalidInput = "INVALID_INPUT"
	KindNotFound     = "NOT_FOUND"
	KindInternal     = "INTERNAL"
)

// Error is a typed failure raised by the services. Kind is one of the
// sentinels above; Message is safe to show to a caller; Err is an optional
// cause that is never exposed outside the process.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is reports whether target is the kind sentinel of e.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error of the given kind.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds an Error of the given kind that keeps cause for logging.
func WrapError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf maps err to a stable kind string. The outermost Error decides the
// kind, so an internal failure that wraps a repository miss stays INTERNAL.
// Unknown errors are INTERNAL.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		err = e.Kind
	}
	switch {
	case errors.Is(err, ErrorUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrorForbidden):
		return KindForbidden
	case errors.Is(err, ErrorConflict):
		return KindConflict
	case errors.Is(err, ErrorInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrorNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// MessageOf returns the caller-safe message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if KindOf(err) == KindInternal {
		return ErrorInternal.Error()
	}
	return err.Error()
}
