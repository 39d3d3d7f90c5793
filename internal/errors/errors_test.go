package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeInvalidCode, "Unknown pairing code")
		assert.Equal(t, "INVALID_CODE: Unknown pairing code", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("json: unsupported value")
		err := Wrap(ErrCodeInternal, "Failed to encode message", cause)
		assert.Contains(t, err.Error(), "INTERNAL_ERROR")
		assert.Contains(t, err.Error(), "Failed to encode message")
		assert.Contains(t, err.Error(), "json: unsupported value")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := InvalidCodeDetails{Reason: ReasonExpired}
		err := New(ErrCodeExpired, "Expired").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"InvalidCode", InvalidCode, ErrCodeInvalidCode},
		{"MalformedCode", MalformedCode, ErrCodeInvalidCode},
		{"Expired", Expired, ErrCodeExpired},
		{"AlreadyJoining", AlreadyJoining, ErrCodeAlreadyJoining},
		{"RateLimited", func() *AppError { return RateLimited(time.Minute) }, ErrCodeRateLimited},
		{"NotApproved", func() *AppError { return NotApproved("test") }, ErrCodeNotApproved},
		{"MalformedMessage", func() *AppError { return MalformedMessage("test") }, ErrCodeMalformedMessage},
		{"InvalidInput", func() *AppError { return InvalidInput("role", "unknown") }, ErrCodeInvalidInput},
		{"Forbidden", func() *AppError { return Forbidden("test") }, ErrCodeForbidden},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
		{"Unavailable", func() *AppError { return Unavailable("test") }, ErrCodeUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestInvalidCodeReasons(t *testing.T) {
	tests := []struct {
		err    *AppError
		reason string
	}{
		{InvalidCode(), ReasonUnknown},
		{MalformedCode(), ReasonMalformed},
		{Expired(), ReasonExpired},
		{AlreadyJoining(), ReasonInUse},
	}

	for _, tc := range tests {
		t.Run(tc.reason, func(t *testing.T) {
			details, ok := tc.err.Details.(InvalidCodeDetails)
			assert.True(t, ok)
			assert.Equal(t, tc.reason, details.Reason)
		})
	}
}

func TestRateLimitDetails(t *testing.T) {
	t.Run("rounds partial seconds up", func(t *testing.T) {
		d := RateLimitDetails{RetryAfter: 1500 * time.Millisecond}
		assert.Equal(t, 2, d.RetryAfterSeconds())
	})

	t.Run("never reports less than one second", func(t *testing.T) {
		d := RateLimitDetails{RetryAfter: 0}
		assert.Equal(t, 1, d.RetryAfterSeconds())
	})

	t.Run("keeps whole seconds", func(t *testing.T) {
		d := RateLimitDetails{RetryAfter: 15 * time.Minute}
		assert.Equal(t, 900, d.RetryAfterSeconds())
	})
}

func TestClosesConnection(t *testing.T) {
	t.Run("join refusals close", func(t *testing.T) {
		assert.True(t, ClosesConnection(InvalidCode()))
		assert.True(t, ClosesConnection(Expired()))
		assert.True(t, ClosesConnection(AlreadyJoining()))
		assert.True(t, ClosesConnection(RateLimited(time.Second)))
	})

	t.Run("ordering problems keep the connection", func(t *testing.T) {
		assert.False(t, ClosesConnection(NotApproved("early")))
		assert.False(t, ClosesConnection(MalformedMessage("bad")))
	})

	t.Run("unknown errors close", func(t *testing.T) {
		assert.True(t, ClosesConnection(errors.New("boom")))
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts AppError", func(t *testing.T) {
		original := InvalidCode()
		extracted, ok := AsAppError(original)
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		err := errors.New("standard error")
		extracted, ok := AsAppError(err)
		assert.False(t, ok)
		assert.Nil(t, extracted)
		assert.False(t, IsAppError(err))
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		assert.Equal(t, ErrCodeAlreadyJoining, GetCode(AlreadyJoining()))
	})

	t.Run("returns ErrCodeInternal for standard error", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("standard error")))
	})
}
