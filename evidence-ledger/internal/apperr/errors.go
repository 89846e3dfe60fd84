package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers. Kinds are stable strings and appear
// verbatim in API error codes.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindAdmissibility   Kind = "ADMISSIBILITY"
	KindIO              Kind = "IO"
	KindFileUnavailable Kind = "FILE_UNAVAILABLE"
	KindPersistence     Kind = "PERSISTENCE"
	KindForbidden       Kind = "FORBIDDEN"
	KindInternal        Kind = "INTERNAL"
)

// Sentinels usable with errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrAdmissibility   = &Error{Kind: KindAdmissibility}
	ErrIO              = &Error{Kind: KindIO}
	ErrFileUnavailable = &Error{Kind: KindFileUnavailable}
	ErrPersistence     = &Error{Kind: KindPersistence}
	ErrForbidden       = &Error{Kind: KindForbidden}
)

// Error is the error type returned by every engine operation.
// Msg is safe to show to end users; Err carries the internal cause and is
// only logged.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so that errors.Is(err, apperr.ErrNotFound) works
// for any NOT_FOUND error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

func newf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, nil, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, nil, format, args...)
}

func Admissibility(format string, args ...interface{}) *Error {
	return newf(KindAdmissibility, nil, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, nil, format, args...)
}

func IO(err error, format string, args ...interface{}) *Error {
	return newf(KindIO, err, format, args...)
}

func FileUnavailable(err error, format string, args ...interface{}) *Error {
	return newf(KindFileUnavailable, err, format, args...)
}

func Persistence(err error, format string, args ...interface{}) *Error {
	return newf(KindPersistence, err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the user-facing message of err. Errors outside the
// taxonomy get a generic message so internal detail never leaks.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}
