package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Pairing
	ErrCodeInvalidCode    ErrorCode = "INVALID_CODE"
	ErrCodeExpired        ErrorCode = "CODE_EXPIRED"
	ErrCodeAlreadyJoining ErrorCode = "ALREADY_JOINING"

	// Rate Limiting
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// Signaling
	ErrCodeNotApproved      ErrorCode = "NOT_APPROVED"
	ErrCodeMalformedMessage ErrorCode = "MALFORMED_MESSAGE"

	// Validation
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	// Internal
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Invalid code reasons surfaced to joiners.
const (
	ReasonUnknown   = "unknown"
	ReasonMalformed = "malformed"
	ReasonExpired   = "expired"
	ReasonInUse     = "in-use"
)

// AppError is a structured error that can be reported to clients
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

// InvalidCodeDetails tells the joiner why its code was refused.
type InvalidCodeDetails struct {
	Reason string `json:"reason"`
}

// RateLimitDetails carries the lockout remaining for a refused origin.
type RateLimitDetails struct {
	RetryAfter time.Duration `json:"-"`
}

// RetryAfterSeconds rounds up so clients never retry a moment too early.
func (d RateLimitDetails) RetryAfterSeconds() int {
	secs := int(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

func InvalidCode() *AppError {
	return New(ErrCodeInvalidCode, "Unknown pairing code").
		WithDetails(InvalidCodeDetails{Reason: ReasonUnknown})
}

func MalformedCode() *AppError {
	return New(ErrCodeInvalidCode, "Pairing code is not well formed").
		WithDetails(InvalidCodeDetails{Reason: ReasonMalformed})
}

func Expired() *AppError {
	return New(ErrCodeExpired, "Pairing code has expired").
		WithDetails(InvalidCodeDetails{Reason: ReasonExpired})
}

func AlreadyJoining() *AppError {
	return New(ErrCodeAlreadyJoining, "Another device is already joining this code").
		WithDetails(InvalidCodeDetails{Reason: ReasonInUse})
}

func RateLimited(retryAfter time.Duration) *AppError {
	return New(ErrCodeRateLimited, "Too many attempts. Please try again later.").
		WithDetails(RateLimitDetails{RetryAfter: retryAfter})
}

func NotApproved(message string) *AppError {
	return New(ErrCodeNotApproved, message)
}

func MalformedMessage(message string) *AppError {
	return New(ErrCodeMalformedMessage, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Unavailable(message string) *AppError {
	return New(ErrCodeUnavailable, message)
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

// ClosesConnection reports whether the server hangs up after reporting err.
// Join refusals are treated as hostile or stale clients; ordering problems
// inside a live session are tolerated.
func ClosesConnection(err error) bool {
	switch GetCode(err) {
	case ErrCodeNotApproved, ErrCodeMalformedMessage:
		return false
	default:
		return true
	}
}
