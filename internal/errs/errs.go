// Package errs implements the stable error taxonomy shared by every
// component of the queue manager. Exception-based control flow in the
// source system becomes explicit result values here: callers discriminate
// on Kind, never on message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable error-classification identifier.
type Kind string

const (
	Unauthorized       Kind = "unauthorized"
	Forbidden          Kind = "forbidden"
	NotFound           Kind = "not_found"
	Conflict           Kind = "conflict"
	InvalidArgument    Kind = "invalid_argument"
	InvalidState       Kind = "invalid_state"
	AtCapacity         Kind = "at_capacity"
	Closed             Kind = "closed"
	RateLimited        Kind = "rate_limited"
	Transient          Kind = "transient"
	NotificationFailed Kind = "notification_failed"
)

// Context carries optional identifying fields for an error.
type Context struct {
	EntityID string
	TenantID string
}

// Error is the error type returned by every component in this module.
type Error struct {
	Kind    Kind
	Message string
	Ctx     Context
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/As to see through to a wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, errs.New(errs.NotFound, "")) style comparisons work.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithContext attaches entity/tenant context to an error, returning a copy.
func (e *Error) WithContext(entityID, tenantID string) *Error {
	cp := *e
	cp.Ctx = Context{EntityID: entityID, TenantID: tenantID}
	return &cp
}

// KindOf extracts the Kind from err, or "" if err is not one of ours.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func InvalidArgumentf(format string, args ...any) *Error {
	return New(InvalidArgument, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func InvalidStatef(format string, args ...any) *Error {
	return New(InvalidState, fmt.Sprintf(format, args...))
}

func Transientf(cause error, format string, args ...any) *Error {
	return Wrap(Transient, fmt.Sprintf(format, args...), cause)
}

func AtCapacityf(format string, args ...any) *Error {
	return New(AtCapacity, fmt.Sprintf(format, args...))
}

func Closedf(format string, args ...any) *Error {
	return New(Closed, fmt.Sprintf(format, args...))
}

func RateLimitedf(format string, args ...any) *Error {
	return New(RateLimited, fmt.Sprintf(format, args...))
}
