// Package errors defines the AppError returned across the HTTP and CLI surfaces.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeUnavailable  ErrorType = "unavailable"
	ErrorTypeInternal     ErrorType = "internal_error"
)

// AppError is an error with a stable type and the HTTP status it maps to.
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func newAppError(t ErrorType, code int, message string, details []string) *AppError {
	e := &AppError{Type: t, Message: message, Code: code}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

func NewValidationError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, details)
}

func NewNotFoundError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, message, details)
}

func NewConflictError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeConflict, http.StatusConflict, message, details)
}

func NewUnauthorizedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeUnauthorized, http.StatusUnauthorized, message, details)
}

func NewForbiddenError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeForbidden, http.StatusForbidden, message, details)
}

// NewUnavailableError marks a dependency (gateway, database) as temporarily unreachable.
func NewUnavailableError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeUnavailable, http.StatusServiceUnavailable, message, details)
}

func NewInternalError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, details)
}

// GetAppError extracts the first AppError in err's chain.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func isType(err error, t ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == t
}

func IsNotFoundError(err error) bool    { return isType(err, ErrorTypeNotFound) }
func IsConflictError(err error) bool    { return isType(err, ErrorTypeConflict) }
func IsValidationError(err error) bool  { return isType(err, ErrorTypeValidation) }
func IsUnavailableError(err error) bool { return isType(err, ErrorTypeUnavailable) }

// IsDuplicateError detects unique-key violations from MySQL and SQLite.
func IsDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key")
}
