// Package apperr defines the typed errors returned by the storefront services.
//
// Services return *Error values so that transport layers can map failures to
// status codes without string matching:
//
//	if apperr.KindOf(err) == apperr.KindNotFound {
//	    // 404
//	}
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	// KindInternal is an unexpected failure (storage, upstream, bugs).
	KindInternal Kind = iota
	// KindNotFound means the requested entity does not exist.
	KindNotFound
	// KindInvalid means the request failed validation.
	KindInvalid
	// KindUnauthorized means the caller is not authenticated.
	KindUnauthorized
	// KindForbidden means the caller may not perform the operation.
	KindForbidden
	// KindConflict means the operation clashes with current state.
	KindConflict
	// KindUnavailable means a dependency or resource is not available.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is an application error with a kind, a client-safe message and
// optional extra fields that are rendered next to the message.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// With attaches an extra response field and returns the error.
func (e *Error) With(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// NotFound reports a missing entity. An empty id yields "<entity> not found".
func NotFound(entity, id string) *Error {
	if id == "" {
		return New(KindNotFound, entity+" not found")
	}
	return &Error{Kind: KindNotFound, Message: entity + " not found", Fields: map[string]any{"id": id}}
}

// Invalid reports a validation failure.
func Invalid(msg string) *Error { return New(KindInvalid, msg) }

// Unauthorized reports a missing or bad credential.
func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }

// Forbidden reports a permission failure.
func Forbidden(msg string) *Error { return New(KindForbidden, msg) }

// Unavailable reports a missing dependency.
func Unavailable(msg string) *Error { return New(KindUnavailable, msg) }

// Internal wraps an unexpected failure behind a client-safe message.
func Internal(err error, msg string) *Error { return Wrap(KindInternal, err, msg) }

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// HTTPStatus maps a kind to an HTTP status code.
func HTTPStatus(k Kind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
