package domain

import (
	"errors"
	"fmt"
)

// Error codes carried by AppError.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeConflict            = "CONFLICT"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeAlreadyProcessed    = "ALREADY_PROCESSED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeSignatureMismatch   = "SIGNATURE_MISMATCH"
	CodeTransactionFailure  = "TRANSACTION_FAILURE"
	CodeInternal            = "INTERNAL_ERROR"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

// ErrValidation carries the client-facing message verbatim.
func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrInsufficientBalance() *AppError {
	return &AppError{Code: CodeInsufficientBalance, Message: "Balance too low", Status: 400}
}

// ErrAlreadyProcessed is the idempotent outcome of a repeated settlement.
func ErrAlreadyProcessed(key string) *AppError {
	return &AppError{Code: CodeAlreadyProcessed, Message: fmt.Sprintf("already processed: %s", key), Status: 200}
}

// ErrUpstreamUnavailable wraps a failed oracle or partner call. msg is shown to the client.
func ErrUpstreamUnavailable(msg string, cause error) *AppError {
	return &AppError{Code: CodeUpstreamUnavailable, Message: msg, Status: 502, Cause: cause}
}

func ErrSignatureMismatch() *AppError {
	return &AppError{Code: CodeSignatureMismatch, Message: "Invalid signature", Status: 401}
}

func ErrTransactionFailure(cause error) *AppError {
	return &AppError{Code: CodeTransactionFailure, Message: "transaction failed", Status: 500, Cause: cause}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}

// IsCode reports whether err wraps an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// AsAppError unwraps err to an AppError if one is present.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
