package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Run("nil error has empty code", func(t *testing.T) {
		assert.Equal(t, Code(""), CodeOf(nil))
	})

	t.Run("coded error returns its code", func(t *testing.T) {
		err := New(CodeUnknownIndicator, "no mapping for XYZ")
		assert.Equal(t, CodeUnknownIndicator, CodeOf(err))
	})

	t.Run("uncoded error maps to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := New(CodeTimeout, "deadline exceeded")
		wrapped := fmt.Errorf("fetch worldbank: %w", err)
		assert.Equal(t, CodeTimeout, CodeOf(wrapped))
	})

	t.Run("outermost code wins on double wrap", func(t *testing.T) {
		inner := New(CodeTransient, "connection reset")
		outer := Wrap(inner, CodeTimeout, "gave up waiting")
		assert.Equal(t, CodeTimeout, CodeOf(outer))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil in nil out", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("preserves cause for errors.Is", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeTransient, "fetch failed")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "fetch failed: connection refused", err.Error())
	})

	t.Run("message excludes cause", func(t *testing.T) {
		err := Wrap(errors.New("dial tcp: timeout"), CodeTransient, "fetch failed")
		var de *Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "fetch failed", de.Message())
	})
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(New(CodeTransient, "5xx")))
	assert.True(t, IsTransient(New(CodeRateLimited, "window full")))
	assert.True(t, IsTransient(New(CodeUnavailable, "redis down")))
	assert.False(t, IsTransient(New(CodePermanent, "404")))
	assert.False(t, IsTransient(New(CodeTimeout, "deadline")))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("uncoded")))
}
