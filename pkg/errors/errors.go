// Package errors defines common error types for the application.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application. Nothing in the precompile subsystem is
// ever process-fatal; every code degrades to "this PSO is not precompiled".
const (
	CodeUnknown           = "UNKNOWN_ERROR"
	CodeStoreCorruption   = "STORE_CORRUPTION"
	CodeShaderUnavailable = "SHADER_UNAVAILABLE"
	CodeCapabilityMissing = "CAPABILITY_UNSUPPORTED"
	CodeCompileFailure    = "COMPILE_FAILURE"
	CodeIOError           = "IO_ERROR"
	CodeStoreError        = "STORE_ERROR"
	CodeInvalidDescriptor = "INVALID_DESCRIPTOR"
	CodeConfigError       = "CONFIG_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeAlreadyOpen       = "ALREADY_OPEN"
	CodeNotOpen           = "NOT_OPEN"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target by code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	ErrStoreCorruption   = New(CodeStoreCorruption, "descriptor bytes failed structural decode")
	ErrShaderUnavailable = New(CodeShaderUnavailable, "required shader code not yet available")
	ErrCapabilityMissing = New(CodeCapabilityMissing, "pipeline capability unsupported on this run")
	ErrCompileFailure    = New(CodeCompileFailure, "pipeline creation failed")
	ErrIOError           = New(CodeIOError, "asynchronous read failed")
	ErrStoreError        = New(CodeStoreError, "record store error")
	ErrInvalidDescriptor = New(CodeInvalidDescriptor, "descriptor failed consistency check")
	ErrConfigError       = New(CodeConfigError, "configuration error")
	ErrNotFound          = New(CodeNotFound, "record not found")
	ErrAlreadyOpen       = New(CodeAlreadyOpen, "cache already open")
	ErrNotOpen           = New(CodeNotOpen, "cache not open")
)

// IsStoreCorruption checks if the error marks a corrupted record.
func IsStoreCorruption(err error) bool {
	return errors.Is(err, ErrStoreCorruption)
}

// IsShaderUnavailable checks if the error is the transient missing-shader
// condition that triggers a requeue.
func IsShaderUnavailable(err error) bool {
	return errors.Is(err, ErrShaderUnavailable)
}

// IsCapabilityMissing checks if the error marks an unsupported capability.
func IsCapabilityMissing(err error) bool {
	return errors.Is(err, ErrCapabilityMissing)
}

// IsCompileFailure checks if the error came from the creation backend.
func IsCompileFailure(err error) bool {
	return errors.Is(err, ErrCompileFailure)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}
