package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION"
	CodeConflict        Code = "CONFLICT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeAuth            Code = "AUTH"
	CodeForbidden       Code = "FORBIDDEN"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeUpstream        Code = "UPSTREAM"
	CodeStore           Code = "STORE"
)

// AppError is the error type every service returns. Message is safe to show to
// the user; Cause never is.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another *AppError with the same code and message, so a wrapped
// copy of a sentinel still satisfies errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func Validation(msg string) error { return New(CodeValidation, msg) }

func Conflict(msg string) error { return New(CodeConflict, msg) }

func NotFound(msg string) error { return New(CodeNotFound, msg) }

func Auth(msg string) error { return New(CodeAuth, msg) }

func Forbidden(msg string) error { return New(CodeForbidden, msg) }

func Unauthenticated(msg string) error { return New(CodeUnauthenticated, msg) }

// Store hides a storage failure behind the generic user-facing message.
func Store(cause error) error {
	return Wrap(CodeStore, "operation failed", cause)
}

// Upstream hides a completion-service failure behind the generic message.
func Upstream(cause error) error {
	return Wrap(CodeUpstream, "operation failed", cause)
}

// CodeOf returns the code of the first AppError in err's chain, or "" if
// there is none.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// MessageOf returns the user-facing message for err. Errors that are not
// AppErrors never leak their text.
func MessageOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "operation failed"
}
