package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Store access
	ErrCodeTransientStore ErrorCode = "TRANSIENT_STORE"
	ErrCodeDatabase       ErrorCode = "DATABASE_ERROR"

	// Matchmaking
	ErrCodeRaceLoser          ErrorCode = "RACE_LOSER"
	ErrCodePartnerUnavailable ErrorCode = "PARTNER_UNAVAILABLE"
	ErrCodeMatchTimeout       ErrorCode = "MATCH_TIMEOUT"
	ErrCodeMatchCancelled     ErrorCode = "MATCH_CANCELLED"

	// Signaling
	ErrCodeHandshakeTimeout    ErrorCode = "HANDSHAKE_TIMEOUT"
	ErrCodePartnerDisconnected ErrorCode = "PARTNER_DISCONNECTED"

	// Validation & resources
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError is a structured error carrying a stable code.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

// TransientStore marks a store read/write failure that the caller's retry
// loop is expected to absorb, bounded by the matching ceiling.
func TransientStore(op string, cause error) *AppError {
	return Wrap(ErrCodeTransientStore, fmt.Sprintf("store operation failed: %s", op), cause)
}

// RaceLoser marks a creation attempt that turned out to be redundant because
// the partner already created the session. Never surfaced to the user.
func RaceLoser(sessionID string) *AppError {
	return New(ErrCodeRaceLoser, "session already created by partner").WithDetails(sessionID)
}

func PartnerUnavailable(userID string) *AppError {
	return New(ErrCodePartnerUnavailable, fmt.Sprintf("candidate %s failed liveness check", userID))
}

func MatchTimeout() *AppError {
	return New(ErrCodeMatchTimeout, "no partner found within the matching ceiling")
}

func MatchCancelled() *AppError {
	return New(ErrCodeMatchCancelled, "match request cancelled")
}

func HandshakeTimeout(sessionID string) *AppError {
	return New(ErrCodeHandshakeTimeout, "no connection established within the handshake window").WithDetails(sessionID)
}

// PartnerDisconnected is surfaced distinctly from a self-initiated hangup so
// callers can explain why the call ended.
func PartnerDisconnected(sessionID string) *AppError {
	return New(ErrCodePartnerDisconnected, "partner closed the session").WithDetails(sessionID)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// IsAppError checks if an error is an AppError
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

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
