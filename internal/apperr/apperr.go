// Package apperr defines the service-wide error taxonomy. Every error
// that can reach a client carries a stable machine-readable code and an
// HTTP status; storage errors are translated at the repository boundary
// so gorm shapes never leak into responses.
package apperr

import (
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// Stable error codes returned in response bodies.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeLocked             = "ACCOUNT_LOCKED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidToken       = "INVALID_OR_EXPIRED_TOKEN"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is a domain error with a stable code and HTTP status.
type Error struct {
	Code    string            `json:"code"`
	Status  int               `json:"-"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error kept out of client responses.
func (e *Error) WithCause(err error) *Error {
	clone := *e
	clone.cause = err
	return &clone
}

func newError(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Validation returns a 400 with optional per-field detail.
func Validation(message string, fields map[string]string) *Error {
	e := newError(CodeValidation, http.StatusBadRequest, message)
	e.Fields = fields
	return e
}

// Conflict returns a 409 for duplicate unique keys.
func Conflict(message string) *Error {
	return newError(CodeConflict, http.StatusConflict, message)
}

// Unauthorized returns a 401 for bad, missing or expired credentials.
func Unauthorized(message string) *Error {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message)
}

// Locked returns a 423 while a lockout window is active.
func Locked(message string) *Error {
	return newError(CodeLocked, http.StatusLocked, message)
}

// Forbidden returns a 403 for role or ownership violations.
func Forbidden(message string) *Error {
	return newError(CodeForbidden, http.StatusForbidden, message)
}

// NotFound returns a 404.
func NotFound(message string) *Error {
	return newError(CodeNotFound, http.StatusNotFound, message)
}

// InvalidToken returns a 400 for reset/verification token failures.
func InvalidToken(message string) *Error {
	return newError(CodeInvalidToken, http.StatusBadRequest, message)
}

// ServiceUnavailable returns a 500 for downstream misconfiguration
// (mail transport, identity provider).
func ServiceUnavailable(message string) *Error {
	return newError(CodeServiceUnavailable, http.StatusInternalServerError, message)
}

// Internal returns a 500 catch-all.
func Internal(message string) *Error {
	return newError(CodeInternal, http.StatusInternalServerError, message)
}

// As extracts an *Error from any error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// FromStorage translates storage-layer errors into the taxonomy.
// Unrecognized errors become Internal with the cause preserved.
func FromStorage(err error, notFoundMsg string) *Error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound(notFoundMsg)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Conflict("duplicate value for a unique field")
	case errors.Is(err, gorm.ErrInvalidData):
		return Validation("malformed identifier", nil).WithCause(err)
	default:
		return Internal("storage operation failed").WithCause(err)
	}
}
