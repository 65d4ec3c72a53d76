// Package apperr defines the error kinds chat operations fail with and how
// each kind surfaces to HTTP and WebSocket clients.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure. Callers branch on the kind, never on the text.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindPermission  Kind = "permission"
	KindNotFound    Kind = "not_found"
	KindAuth        Kind = "auth"
	KindConflict    Kind = "conflict"
	KindRateLimited Kind = "rate_limited"
	KindStore       Kind = "store"
)

// Error is the typed error returned by the membership and chat services.
type Error struct {
	Kind    Kind
	Message string // safe to show to clients except for KindStore
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrForbidden)
// works regardless of message.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation  = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrForbidden   = &Error{Kind: KindPermission, Message: "forbidden"}
	ErrNotFound    = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAuth        = &Error{Kind: KindAuth, Message: "unauthorized"}
	ErrConflict    = &Error{Kind: KindConflict, Message: "conflict"}
	ErrRateLimited = &Error{Kind: KindRateLimited, Message: "rate limited"}
	ErrStore       = &Error{Kind: KindStore, Message: "internal error"}
)

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }
func Permission(msg string) error { return &Error{Kind: KindPermission, Message: msg} }
func NotFound(msg string) error   { return &Error{Kind: KindNotFound, Message: msg} }
func Auth(msg string) error       { return &Error{Kind: KindAuth, Message: msg} }
func Conflict(msg string) error   { return &Error{Kind: KindConflict, Message: msg} }
func RateLimited(msg string) error {
	return &Error{Kind: KindRateLimited, Message: msg}
}

// Store wraps a collaborator failure. The cause is kept for logs only.
func Store(msg string, cause error) error {
	return &Error{Kind: KindStore, Message: msg, Cause: cause}
}

// KindOf reports the kind of err. Anything that is not an *Error is treated
// as an unexpected store failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// Code is the stable, user-visible outcome for a kind.
func Code(k Kind) string {
	switch k {
	case KindValidation:
		return "validation_failed"
	case KindPermission:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text a client may see. Store failures never leak
// their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindStore {
		return e.Message
	}
	return "internal error"
}
