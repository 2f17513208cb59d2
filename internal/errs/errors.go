// Package errs provides the error type shared by every fileport backend.
//
// Adapters wrap the native SDK or HTTP error into *errs.Error before
// returning it. The native error is kept as Cause, so callers that need the
// vendor's own error shape can still reach it with errors.As, while callers
// that only care about the category use the Is* predicates.
//
// Usage:
//
//	// In an adapter, wrap the native error:
//	return errs.Wrap(errs.ErrKindNotFound, "failed to download object", sdkErr)
//
//	// In calling code, branch on the kind:
//	if errs.IsNotFound(err) {
//	    return nil
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing vendor-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no object, no container
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline, cancellation, throttling
	ErrKindOperationFailed          // backend rejected or failed the operation
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied, bad or expired credentials
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindOperationFailed:
		return "operation_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all fileport backends.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // native backend error, never rewritten
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsNotFound reports whether err represents a missing object or container.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline, cancellation or
// backend throttling.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsOperationFailed reports whether the backend failed the operation for a
// reason not covered by a more specific kind.
func IsOperationFailed(err error) bool {
	return KindOf(err) == ErrKindOperationFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an authentication or access
// control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// KindOf extracts the ErrKind from the first *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
