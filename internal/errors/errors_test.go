package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHTTPError(t *testing.T) {
	cases := map[int]ErrorCategory{
		400: Irrecoverable,
		401: Irrecoverable,
		403: Irrecoverable,
		404: Irrecoverable,
		408: Recoverable,
		409: Irrecoverable,
		429: Recoverable,
		500: Recoverable,
		503: Recoverable,
		302: Recoverable,
	}
	for code, want := range cases {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			err := NewHTTPError(code, "body", "upsert")
			assert.Equal(t, want, err.Category)
			assert.Equal(t, want == Irrecoverable, IsIrrecoverable(err))
			assert.Contains(t, err.Error(), fmt.Sprintf("HTTP %d", code))
		})
	}
}

func TestIsIrrecoverable_Wrapped(t *testing.T) {
	inner := NewIrrecoverable("upsert", stderrors.New("permission denied"))
	wrapped := fmt.Errorf("push record r1: %w", inner)
	assert.True(t, IsIrrecoverable(wrapped))
	assert.False(t, IsIrrecoverable(stderrors.New("plain")))
	assert.False(t, IsIrrecoverable(NewNetworkError("list", stderrors.New("reset"))))
}

func TestClassifiedError_Unwrap(t *testing.T) {
	sentinel := stderrors.New("dial tcp: refused")
	err := NewNetworkError("upsert", sentinel)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "Recoverable", err.Category.String())
	assert.Equal(t, "Unknown(7)", ErrorCategory(7).String())

	coded := &ClassifiedError{Category: Irrecoverable, Code: "42501", Underlying: sentinel}
	assert.Contains(t, coded.Error(), "42501")
}
