// Package apperr defines the error kinds every operation reports to callers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindUnauthorized  Kind = "unauthorized"
	KindConfiguration Kind = "configuration"
	KindTransient     Kind = "transient"
	KindInternal      Kind = "internal"
)

// Error carries a caller-safe message. Err holds the underlying cause for
// logging and is never exposed to clients.
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

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error      { return New(KindNotFound, message) }
func Validation(message string) *Error    { return New(KindValidation, message) }
func Conflict(message string) *Error      { return New(KindConflict, message) }
func Unauthorized(message string) *Error  { return New(KindUnauthorized, message) }
func Configuration(message string) *Error { return New(KindConfiguration, message) }

func Transient(message string, err error) *Error { return Wrap(KindTransient, message, err) }
func Internal(message string, err error) *Error  { return Wrap(KindInternal, message, err) }

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for unrecognized errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}
