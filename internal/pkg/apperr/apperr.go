// Package apperr defines the stable error-kind taxonomy shared by every
// component, independent of the transport that eventually surfaces it.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the stable error kinds from the error taxonomy.
type Kind string

const (
	InvalidInput             Kind = "InvalidInput"
	PermissionDenied         Kind = "PermissionDenied"
	NotFound                 Kind = "NotFound"
	FolderCapExceeded        Kind = "FolderCapExceeded"
	EmptyFolder              Kind = "EmptyFolder"
	RateLimitExhausted       Kind = "RateLimitExhausted"
	TransientUpstream        Kind = "TransientUpstream"
	ProcessingFailed         Kind = "ProcessingFailed"
	VectorBackendUnavailable Kind = "VectorBackendUnavailable"
	QueueUnavailable         Kind = "QueueUnavailable"
	StoreUnavailable         Kind = "StoreUnavailable"
)

// Error wraps a Kind with a human message and an optional underlying cause.
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

// Is lets errors.Is(err, apperr.New(kind, "", nil)) match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func InvalidInputf(format string, args ...interface{}) *Error {
	return New(InvalidInput, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, args...), nil)
}

func PermissionDeniedf(format string, args ...interface{}) *Error {
	return New(PermissionDenied, fmt.Sprintf(format, args...), nil)
}

func ProcessingFailedf(cause error, format string, args ...interface{}) *Error {
	return New(ProcessingFailed, fmt.Sprintf(format, args...), cause)
}

func TransientUpstreamf(cause error, format string, args ...interface{}) *Error {
	return New(TransientUpstream, fmt.Sprintf(format, args...), cause)
}
