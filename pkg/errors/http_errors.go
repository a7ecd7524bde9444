package errors

import (
	"errors"
	"net/http"
)

// BadRequestWithDetails creates a 400 Bad Request error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	return NewBadRequestError(code, message).WithDetails(details)
}

// ForbiddenWithDetails creates a 403 Forbidden error with details
func ForbiddenWithDetails(code string, message string, details any) *AppError {
	return NewForbiddenError(code, message).WithDetails(details)
}

// ConflictWithDetails creates a 409 Conflict error with details
func ConflictWithDetails(code string, message string, details any) *AppError {
	return NewConflictError(code, message).WithDetails(details)
}

// FromError converts a standard error to an AppError.
// If the error already is (or wraps) an AppError, that one is returned.
// Otherwise it is wrapped as an internal server error whose message does not
// leak the original text.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return NewInternalServerError(CodeInternal, "An unexpected error occurred").WithCause(err)
}

// GetStatusCode extracts the HTTP status code from an AppError, returns 500 if not an AppError
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// GetErrorCode extracts the error code from an AppError, returns "UNKNOWN_ERROR" if not an AppError
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}
