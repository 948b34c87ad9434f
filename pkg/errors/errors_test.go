package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	e := New(CodeCompileFailure, "creation failed")
	assert.Equal(t, "[COMPILE_FAILURE] creation failed", e.Error())

	wrapped := Wrap(CodeIOError, "read failed", stderrors.New("disk gone"))
	assert.Equal(t, "[IO_ERROR] read failed: disk gone", wrapped.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	inner := stderrors.New("root cause")
	wrapped := Wrap(CodeStoreError, "query failed", inner)
	assert.ErrorIs(t, wrapped, inner)
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := Wrap(CodeShaderUnavailable, "shader 0xA missing", nil)
	assert.ErrorIs(t, err, ErrShaderUnavailable)
	assert.NotErrorIs(t, err, ErrStoreCorruption)

	t.Run("ThroughWrapping", func(t *testing.T) {
		outer := fmt.Errorf("tick failed: %w", err)
		assert.True(t, IsShaderUnavailable(outer))
		assert.False(t, IsCompileFailure(outer))
	})
}

func TestIsHelpers(t *testing.T) {
	assert.True(t, IsStoreCorruption(ErrStoreCorruption))
	assert.True(t, IsCapabilityMissing(Wrap(CodeCapabilityMissing, "no ray tracing", nil)))
	assert.True(t, IsCompileFailure(ErrCompileFailure))
	assert.False(t, IsStoreCorruption(stderrors.New("other")))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, CodeNotFound, GetErrorCode(ErrNotFound))
	assert.Equal(t, CodeIOError, GetErrorCode(fmt.Errorf("wrapped: %w", ErrIOError)))
	assert.Equal(t, CodeUnknown, GetErrorCode(stderrors.New("plain")))
	assert.Equal(t, CodeUnknown, GetErrorCode(nil))
}
