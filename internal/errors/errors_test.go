package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "session not found")
		assert.Equal(t, "NOT_FOUND: session not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		err := New(ErrCodeRaceLoser, "lost").WithDetails("session-1")
		assert.Equal(t, "session-1", err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"RaceLoser", func() *AppError { return RaceLoser("s1") }, ErrCodeRaceLoser},
		{"PartnerUnavailable", func() *AppError { return PartnerUnavailable("u1") }, ErrCodePartnerUnavailable},
		{"MatchTimeout", func() *AppError { return MatchTimeout() }, ErrCodeMatchTimeout},
		{"MatchCancelled", func() *AppError { return MatchCancelled() }, ErrCodeMatchCancelled},
		{"HandshakeTimeout", func() *AppError { return HandshakeTimeout("s1") }, ErrCodeHandshakeTimeout},
		{"PartnerDisconnected", func() *AppError { return PartnerDisconnected("s1") }, ErrCodePartnerDisconnected},
		{"NotFound", func() *AppError { return NotFound("session") }, ErrCodeNotFound},
		{"ValidationError", func() *AppError { return ValidationError("bad input") }, ErrCodeValidation},
		{"Internal", func() *AppError { return Internal("boom") }, ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestTransientStore(t *testing.T) {
	t.Run("wraps cause and names the operation", func(t *testing.T) {
		cause := errors.New("deadlock detected")
		err := TransientStore("mark matched", cause)
		assert.Equal(t, ErrCodeTransientStore, err.Code)
		assert.Contains(t, err.Message, "mark matched")
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestDatabase(t *testing.T) {
	t.Run("wraps database error", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Database(cause)
		assert.Equal(t, ErrCodeDatabase, err.Code)
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestIsAppError(t *testing.T) {
	t.Run("returns true for AppError", func(t *testing.T) {
		assert.True(t, IsAppError(New(ErrCodeNotFound, "test")))
	})

	t.Run("returns false for standard error", func(t *testing.T) {
		assert.False(t, IsAppError(errors.New("standard error")))
	})

	t.Run("returns true for wrapped AppError", func(t *testing.T) {
		wrapped := fmt.Errorf("attempt: %w", MatchTimeout())
		assert.True(t, IsAppError(wrapped))
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts AppError", func(t *testing.T) {
		original := New(ErrCodeNotFound, "session not found")
		extracted, ok := AsAppError(original)
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		extracted, ok := AsAppError(errors.New("standard error"))
		assert.False(t, ok)
		assert.Nil(t, extracted)
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		assert.Equal(t, ErrCodeMatchTimeout, GetCode(MatchTimeout()))
	})

	t.Run("returns ErrCodeInternal for standard error", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("standard error")))
	})
}

func TestHasCode(t *testing.T) {
	t.Run("matches through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("create session: %w", RaceLoser("s1"))
		assert.True(t, HasCode(wrapped, ErrCodeRaceLoser))
		assert.False(t, HasCode(wrapped, ErrCodeMatchTimeout))
	})

	t.Run("false for plain errors", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("nope"), ErrCodeRaceLoser))
	})
}
