// Package result defines the outcome envelope returned by every public
// operation of the identity core, together with the error taxonomy used to
// classify failures.
//
// Expected conditions (not found, conflicts, bad credentials) are returned as
// a failed Result at the point of detection. Unexpected failures are converted
// once, at the boundary of the public operation, into KindInternal with a
// generic message; the underlying error is kept for logging only.
package result

import (
	"errors"
	"net/http"
)

// Kind classifies a failure
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindUnauthorized   Kind = "unauthorized"
	KindInvalid        Kind = "invalid"
	KindPartialFailure Kind = "partial_failure"
	KindInternal       Kind = "internal"
)

// Generic messages for kinds that must not leak detail
const (
	MsgUnauthorized = "invalid credentials"
	MsgInternal     = "an internal error occurred"
)

// Sentinel errors shared by the stores. Stores wrap these with %w.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Error is the error detail of a failed Result
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	cause error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As
func (e *Error) Unwrap() error {
	return e.cause
}

// Status maps the kind to its HTTP-equivalent status code
func (e *Error) Status() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Result carries a success flag, a nullable payload and error detail
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// OK builds a successful result
func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: &data}
}

// Fail builds a failed result
func Fail[T any](kind Kind, message string) Result[T] {
	return Result[T]{Error: &Error{Kind: kind, Message: message}}
}

// FailWith builds a failed result that retains cause for logging
func FailWith[T any](kind Kind, message string, cause error) Result[T] {
	return Result[T]{Error: &Error{Kind: kind, Message: message, cause: cause}}
}

// Unauthorized builds the generic credential/token rejection
func Unauthorized[T any]() Result[T] {
	return Fail[T](KindUnauthorized, MsgUnauthorized)
}

// Internal builds a generic internal failure, keeping cause for logs
func Internal[T any](cause error) Result[T] {
	return FailWith[T](KindInternal, MsgInternal, cause)
}

// FromError classifies a store error. ErrNotFound and ErrConflict keep the
// caller-supplied message; anything else becomes a generic internal failure.
func FromError[T any](err error, message string) Result[T] {
	switch {
	case errors.Is(err, ErrNotFound):
		return FailWith[T](KindNotFound, message, err)
	case errors.Is(err, ErrConflict):
		return FailWith[T](KindConflict, message, err)
	default:
		return Internal[T](err)
	}
}

// Cause returns the underlying error of a failed result, if any
func (r Result[T]) Cause() error {
	if r.Error == nil {
		return nil
	}
	return r.Error.cause
}

// Is reports whether the result failed with the given kind
func (r Result[T]) Is(kind Kind) bool {
	return r.Error != nil && r.Error.Kind == kind
}
