package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the chain.
// If err is nil, Wrap returns nil. If err is already an *Error, its code,
// category and context carry through to the wrapper.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var domErr *Error
	if errors.As(err, &domErr) {
		wrapped := &Error{
			code:      domErr.code,
			category:  domErr.category,
			message:   message,
			cause:     err,
			metadata:  domErr.Metadata(),
			retryable: domErr.retryable,
			timestamp: domErr.timestamp,
			groupID:   domErr.groupID,
			taskID:    domErr.taskID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeTimeout, message, append(opts, WithCause(err))...)
	}

	return New(CodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error under a specific code.
func WrapWithCode(err error, code Code, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// Is reports whether any error in the chain carries the given code.
func Is(err error, code Code) bool {
	var domErr *Error
	if errors.As(err, &domErr) {
		return domErr.code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in the chain, or
// CodeInternal if the chain contains none.
func CodeOf(err error) Code {
	var domErr *Error
	if errors.As(err, &domErr) {
		return domErr.code
	}
	return CodeInternal
}

// IsRetryable reports whether the error chain indicates a retryable failure.
// Unknown errors are treated as non-retryable.
func IsRetryable(err error) bool {
	var domErr *Error
	if errors.As(err, &domErr) {
		return domErr.Retryable()
	}
	return false
}
