package common

import (
	"errors"
	"net/http"
)

// Error codes rendered in the "code" field of error responses.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeUnknownItem      = "UNKNOWN_ITEM"
	CodeShortfall        = "SHORTFALL"
	CodeStaleStock       = "STALE_STOCK"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeLocked           = "LOCKED"
	CodeTimeout          = "TIMEOUT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeIdempotentReplay = "IDEMPOTENT_REPLAY"
	CodeInternal         = "INTERNAL"
)

// AppError carries the code, status and client-facing message an error maps to.
// Err is kept for logs and errors.Is; it is never rendered.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithDetails attaches a details payload rendered alongside the error.
func (e *AppError) WithDetails(details any) *AppError {
	if e == nil {
		return nil
	}
	e.Details = details
	return e
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// InvalidInput is a 400 INVALID_INPUT error.
func InvalidInput(message string, err error) *AppError {
	return NewAppError(CodeInvalidInput, message, http.StatusBadRequest, err)
}

// Internal is a 500 with a generic message.
func Internal(err error) *AppError {
	return NewAppError(CodeInternal, "internal error", http.StatusInternalServerError, err)
}

// AsAppError unwraps err into an AppError; anything else becomes Internal.
func AsAppError(err error) *AppError {
	var target *AppError
	if errors.As(err, &target) && target != nil {
		return target
	}
	return Internal(err)
}
