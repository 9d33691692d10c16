package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the fixed, finite classification of every failure a flow can
// report. The command layer maps each kind to a protocol result code.
type ErrorKind string

const (
	// KindNotFound means no active resource or index entry matched.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindConflict covers name collisions, concurrent-update races and
	// duplicate pending transfers.
	KindConflict ErrorKind = "CONFLICT"

	// KindAuthorization means the acting client lacks rights on the resource.
	KindAuthorization ErrorKind = "AUTHORIZATION"

	// KindInvalidState means the command is illegal given the current
	// resource or transfer state.
	KindInvalidState ErrorKind = "INVALID_STATE"

	// KindParameter means the command payload is malformed.
	KindParameter ErrorKind = "PARAMETER"

	// KindIntegrity means a stored invariant was found violated. It is
	// always fatal and never repaired silently.
	KindIntegrity ErrorKind = "INTEGRITY"
)

// ResultCode returns the EPP result code the command layer reports for k.
func (k ErrorKind) ResultCode() int {
	switch k {
	case KindNotFound:
		return 2303 // object does not exist
	case KindConflict:
		return 2302 // object exists
	case KindAuthorization:
		return 2201 // authorization error
	case KindInvalidState:
		return 2304 // object status prohibits operation
	case KindParameter:
		return 2005 // parameter value syntax error
	default:
		return 2400 // command failed
	}
}

// Error is a classified registry failure.
type Error struct {
	Kind    ErrorKind
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

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) *Error { return newError(KindNotFound, format, args...) }

// Conflict returns a KindConflict error.
func Conflict(format string, args ...any) *Error { return newError(KindConflict, format, args...) }

// Unauthorized returns a KindAuthorization error.
func Unauthorized(format string, args ...any) *Error {
	return newError(KindAuthorization, format, args...)
}

// InvalidState returns a KindInvalidState error.
func InvalidState(format string, args ...any) *Error {
	return newError(KindInvalidState, format, args...)
}

// Parameter returns a KindParameter error.
func Parameter(format string, args ...any) *Error { return newError(KindParameter, format, args...) }

// Integrity returns a KindIntegrity error.
func Integrity(format string, args ...any) *Error { return newError(KindIntegrity, format, args...) }

// WrapConflict classifies err as a concurrent-update conflict.
func WrapConflict(message string, err error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// KindOf returns the classification of err. Errors that carry no
// classification are reported with ok == false; callers treat them as store
// failures.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsConflict reports whether err is a KindConflict error.
func IsConflict(err error) bool { return IsKind(err, KindConflict) }

// IsIntegrity reports whether err is a KindIntegrity error.
func IsIntegrity(err error) bool { return IsKind(err, KindIntegrity) }

// IsClientError reports whether err was caused by the command rather than by
// the registry: everything except integrity faults and unclassified failures.
func IsClientError(err error) bool {
	k, ok := KindOf(err)
	return ok && k != KindIntegrity
}
