package errors

import (
	"fmt"
	"time"
)

// Error is a structured error carrying a code, category and context
// about the task or group the failure relates to.
type Error struct {
	code      Code
	category  Category
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool // nil means use the category default
	timestamp time.Time
	groupID   string
	taskID    string
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() Code {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() Category {
	return e.category
}

// Retryable returns whether the failed operation may succeed on retry.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.category.IsRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// GroupID returns the related chat group ID, if set.
func (e *Error) GroupID() string {
	return e.groupID
}

// TaskID returns the related task ID, if set.
func (e *Error) TaskID() string {
	return e.taskID
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// WithCategory overrides the default category.
func WithCategory(cat Category) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithGroupID sets the related chat group ID.
func WithGroupID(id string) Option {
	return func(e *Error) {
		e.groupID = id
	}
}

// WithTaskID sets the related task ID.
func WithTaskID(id string) Option {
	return func(e *Error) {
		e.taskID = id
	}
}

// New creates a new Error with the given code and message.
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code Code, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// InvalidTransition creates the error returned when a status change
// outside the allowed transition set is attempted. The current and
// requested statuses are recorded in the message and metadata.
func InvalidTransition(from, to string, opts ...Option) *Error {
	opts = append(opts,
		WithMetadata("from", from),
		WithMetadata("to", to),
	)
	return New(CodeInvalidTransition,
		fmt.Sprintf("cannot transition from %q to %q", from, to), opts...)
}

// Conflict creates the error a losing concurrent writer receives.
func Conflict(message string, opts ...Option) *Error {
	return New(CodeConflict, message, opts...)
}

// NotFound creates a not-found error.
func NotFound(message string, opts ...Option) *Error {
	return New(CodeNotFound, message, opts...)
}

// Unavailable creates a transient repository failure error.
func Unavailable(message string, opts ...Option) *Error {
	return New(CodeUnavailable, message, opts...)
}

// AlreadyPending creates the error for a second outstanding
// bulk-deletion request in the same group.
func AlreadyPending(groupID string, opts ...Option) *Error {
	opts = append(opts, WithGroupID(groupID))
	return New(CodeAlreadyPending, CodeAlreadyPending.Description(), opts...)
}

// RequestExpired creates the error for an approval on a stale request.
func RequestExpired(requestID string, opts ...Option) *Error {
	opts = append(opts, WithMetadata("request_id", requestID))
	return New(CodeRequestExpired, CodeRequestExpired.Description(), opts...)
}
