// Package apperr defines the closed error taxonomy shared by the X API
// client, the publish/collect operations and the generation client.
//
// Raw transport and HTTP failures are translated into an *Error the moment
// they are observed; callers only ever match on Kind.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an Error.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindValidation
	KindNotFound
	KindRateLimited
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Code returns the wire code used in API error payloads.
func (k Kind) Code() string {
	switch k {
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindRateLimited:
		return "X_RATE_LIMIT"
	case KindUpstream:
		return "X_API_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// defaultStatus is the HTTP status reported for a kind when the error was
// not produced from an upstream response.
func (k Kind) defaultStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the tagged error value.
type Error struct {
	Kind    Kind
	Status  int // upstream HTTP status; 0 for transport failures and local errors
	Message string
	Field   string    // offending field for validation errors
	ResetAt time.Time // when a rate-limited caller may retry
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus reports the upstream status used by retry classification.
// Errors without an upstream response report 0.
func (e *Error) HTTPStatus() int { return e.Status }

// StatusCode is the status a boundary should answer with.
func (e *Error) StatusCode() int {
	if e.Status >= 400 {
		return e.Status
	}
	return e.Kind.defaultStatus()
}

// RetryAfter is the time left until ResetAt, never negative.
func (e *Error) RetryAfter(now time.Time) time.Duration {
	if e.ResetAt.IsZero() {
		return 0
	}
	if d := e.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// New creates an error of kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. The original error stays reachable via errors.As.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Validation reports a caller-fixable problem with field.
func Validation(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// RateLimited reports exhausted quota resetting at resetAt.
func RateLimited(resetAt time.Time, format string, args ...any) *Error {
	return &Error{
		Kind:    KindRateLimited,
		Status:  0,
		Message: fmt.Sprintf(format, args...),
		ResetAt: resetAt,
	}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err; untagged errors are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
