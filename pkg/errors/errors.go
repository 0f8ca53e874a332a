package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Authentication errors
	ErrCodeNotAuthenticated ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeInvalidToken     ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken     ErrorCode = "EXPIRED_TOKEN"

	// Push registration errors
	ErrCodePermissionDenied       ErrorCode = "PERMISSION_DENIED"
	ErrCodeRegistrationFailed     ErrorCode = "REGISTRATION_FAILED"
	ErrCodeTokenPersistenceFailed ErrorCode = "TOKEN_PERSISTENCE_FAILED"

	// Remote store errors
	ErrCodeReadFailed       ErrorCode = "READ_FAILED"
	ErrCodeWriteFailed      ErrorCode = "WRITE_FAILED"
	ErrCodeDeleteFailed     ErrorCode = "DELETE_FAILED"
	ErrCodeBatchWriteFailed ErrorCode = "BATCH_WRITE_FAILED"
	ErrCodeListenerFailed   ErrorCode = "LISTENER_FAILED"
	ErrCodeEncodeFailed     ErrorCode = "ENCODE_FAILED"
	ErrCodeDecodeFailed     ErrorCode = "DECODE_FAILED"

	// Settings errors
	ErrCodeMigrationFailed ErrorCode = "MIGRATION_FAILED"

	// Notification lifecycle errors
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// Not found errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
// The status code defaults to 500 Internal Server Error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// FieldViolation describes a single field-level validation failure
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports field-level validation failures before any I/O is attempted
func ValidationError(message string, violations []FieldViolation) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest).WithDetails(violations)
}

func InvalidInputError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

// Authentication errors
func NotAuthenticatedError() *AppError {
	return NewWithStatus(ErrCodeNotAuthenticated, "User is not authenticated", http.StatusUnauthorized)
}

func InvalidTokenError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

func ExpiredTokenError() *AppError {
	return NewWithStatus(ErrCodeExpiredToken, "Token has expired", http.StatusUnauthorized)
}

// Push registration errors
func PermissionDeniedError() *AppError {
	return NewWithStatus(ErrCodePermissionDenied, "Push permission was denied", http.StatusForbidden)
}

func RegistrationFailedError(err error) *AppError {
	return Wrap(ErrCodeRegistrationFailed, "Push registration failed", err)
}

func TokenPersistenceError(err error) *AppError {
	return Wrap(ErrCodeTokenPersistenceFailed, "Failed to persist device token", err)
}

// Remote store errors, wrapping the raw transport error so it is never
// surfaced directly to presentation code
func ReadError(resource string, err error) *AppError {
	return Wrap(ErrCodeReadFailed, fmt.Sprintf("Failed to read %s", resource), err)
}

func WriteError(resource string, err error) *AppError {
	return Wrap(ErrCodeWriteFailed, fmt.Sprintf("Failed to write %s", resource), err)
}

func DeleteError(resource string, err error) *AppError {
	return Wrap(ErrCodeDeleteFailed, fmt.Sprintf("Failed to delete %s", resource), err)
}

func BatchWriteError(resource string, err error) *AppError {
	return Wrap(ErrCodeBatchWriteFailed, fmt.Sprintf("Batch write of %s failed", resource), err)
}

func ListenerError(resource string, err error) *AppError {
	return Wrap(ErrCodeListenerFailed, fmt.Sprintf("Listener for %s failed", resource), err)
}

func EncodeError(resource string, err error) *AppError {
	return Wrap(ErrCodeEncodeFailed, fmt.Sprintf("Failed to encode %s", resource), err)
}

func DecodeError(resource string, err error) *AppError {
	return Wrap(ErrCodeDecodeFailed, fmt.Sprintf("Failed to decode %s", resource), err)
}

// MigrationError identifies the version pair that could not be bridged
func MigrationError(fromVersion, toVersion int, err error) *AppError {
	return Wrap(ErrCodeMigrationFailed,
		fmt.Sprintf("Settings migration from version %d to %d failed", fromVersion, toVersion), err).
		WithDetails(map[string]int{"from_version": fromVersion, "to_version": toVersion})
}

// InvalidTransitionError rejects a notification state transition not present
// in the lifecycle state machine
func InvalidTransitionError(from, to string) *AppError {
	return NewWithStatus(ErrCodeInvalidTransition,
		fmt.Sprintf("Invalid notification state transition from %s to %s", from, to), http.StatusConflict)
}

// Not found errors
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

// IsAppError checks if an error is an AppError type
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// IsCode reports whether err is an AppError carrying the given code
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return InternalError(err.Error())
}
