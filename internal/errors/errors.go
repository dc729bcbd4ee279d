package errors

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeInvalidInput     = "E100"
	CodeStoreUnavailable = "E200"
	CodeDeliveryFailure  = "E300"
	CodeStateConflict    = "E400"
	CodeRateLimited      = "E500"
	CodeUnauthorized     = "E600"
	CodeNotFound         = "E700"
	CodeInternal         = "E900"
)

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeInvalidInput,
		Message:     msg,
		UserMessage: msg,
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeStoreUnavailable,
		Message:     fmt.Sprintf("Database error: %s", underlyingMsg),
		UserMessage: "Record store is temporarily unavailable",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewDeliveryError reports a failed notification to a single contact.
func NewDeliveryError(provider string, cause error, retryable bool) *AppError {
	msg := fmt.Sprintf("Delivery via %s failed", provider)
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause.Error())
	}

	return &AppError{
		Code:        CodeDeliveryFailure,
		Message:     msg,
		UserMessage: "Notification could not be delivered",
		Severity:    SeverityMedium,
		Retryable:   retryable,
		cause:       cause,
	}
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:        CodeStateConflict,
		Message:     msg,
		UserMessage: "Operation is not possible in the current state",
		Severity:    SeverityMedium,
		Retryable:   false,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimited,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Retry in %d seconds", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

func NewUnauthorizedError() *AppError {
	return &AppError{
		Code:        CodeUnauthorized,
		Message:     "Unauthorized",
		UserMessage: "Unauthorized",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

func NewNotFoundError(what string) *AppError {
	return &AppError{
		Code:        CodeNotFound,
		Message:     fmt.Sprintf("%s not found", what),
		UserMessage: fmt.Sprintf("%s not found", what),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// CodeOf returns the AppError code carried by err, or CodeInternal for foreign errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given AppError code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
