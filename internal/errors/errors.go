package errors

import (
	"errors"
	"fmt"
)

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    "VALIDATION_FAILED",
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string, identifier string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
		Code:    "NOT_FOUND",
		Context: map[string]interface{}{
			"resource":   resource,
			"identifier": identifier,
		},
	}
}

// NewStateConflictError reports a lifecycle command the server rejected
// because the timer is not in the state the caller assumed.
func NewStateConflictError(operation string, timerID string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeStateConflict,
		Message: fmt.Sprintf("%s rejected for timer %s", operation, timerID),
		Code:    "STATE_CONFLICT",
		Cause:   cause,
		Context: map[string]interface{}{
			"operation": operation,
			"timer_id":  timerID,
		},
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(operation string, timeout interface{}) *AppError {
	return &AppError{
		Type:    ErrorTypeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Code:    "TIMEOUT",
		Context: map[string]interface{}{
			"operation": operation,
			"timeout":   timeout,
		},
	}
}

// NewNetworkError wraps a transport failure
func NewNetworkError(operation string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeNetwork,
		Message: fmt.Sprintf("network failure during %s", operation),
		Code:    "NETWORK_ERROR",
		Cause:   cause,
		Context: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInvalidConversionError rejects a timer-to-entry conversion before any write
func NewInvalidConversionError(timerID string, reason string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidConversion,
		Message: fmt.Sprintf("cannot convert timer %s: %s", timerID, reason),
		Code:    "INVALID_CONVERSION",
		Cause:   cause,
		Context: map[string]interface{}{
			"timer_id": timerID,
			"reason":   reason,
		},
	}
}

// NewRemoteError represents an unexpected server response
func NewRemoteError(operation string, status int, body string) *AppError {
	return &AppError{
		Type:    ErrorTypeRemote,
		Message: fmt.Sprintf("%s failed with status %d", operation, status),
		Code:    "REMOTE_ERROR",
		Context: map[string]interface{}{
			"operation": operation,
			"status":    status,
			"body":      body,
		},
	}
}

// WrapError wraps an existing error with additional context
func WrapError(err error, errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Code:    errorType.String(),
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsErrorType checks if the error is of the specified type
func IsErrorType(err error, errorType ErrorType) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.IsType(errorType)
	}
	return false
}

// IsRecoverable reports whether the caller may retry the operation later.
// Timeouts and transport failures are recoverable; the rest are not.
func IsRecoverable(err error) bool {
	return IsErrorType(err, ErrorTypeTimeout) || IsErrorType(err, ErrorTypeNetwork)
}

// GetUserMessage returns a user-friendly error message
func GetUserMessage(err error) string {
	if appErr, ok := AsAppError(err); ok {
		switch appErr.Type {
		case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeInvalidConversion:
			return appErr.Message
		case ErrorTypeStateConflict:
			return "The timer changed on the server. Refresh and try again."
		case ErrorTypeTimeout:
			return "The server did not answer in time. Your timers were resynchronized; please try again."
		case ErrorTypeNetwork:
			return "Could not reach the server. Please check your connection and try again."
		case ErrorTypeRemote:
			return "The server reported an error. Please try again."
		default:
			return "An unexpected error occurred. Please try again."
		}
	}
	return err.Error()
}

// GetErrorCode returns the error code for the error
func GetErrorCode(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// ShouldLogError determines if an error should be logged based on its type
func ShouldLogError(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		switch appErr.Type {
		case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeInvalidConversion:
			return false
		default:
			return true
		}
	}
	return true
}
