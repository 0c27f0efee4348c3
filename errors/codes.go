package errors

// Category classifies errors by their retry semantics.
type Category string

const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: repository outage, a concurrent writer winning a race.
	CategoryTransient Category = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: a disallowed status transition, an expired deletion request.
	CategoryPermanent Category = "permanent"

	// CategoryInternal indicates unexpected errors or corrupted state.
	CategoryInternal Category = "internal"
)

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c Category) IsRetryable() bool {
	return c == CategoryTransient
}

// Code identifies a specific failure type.
type Code string

// Codes for the failure taxonomy of the task coordination core.
const (
	// Transient codes. A CONFLICT loser must re-read and retry with
	// fresh state; UNAVAILABLE means the repository backend failed and
	// the next scheduler tick (or the user) should retry.
	CodeConflict    Code = "CONFLICT"
	CodeUnavailable Code = "UNAVAILABLE"
	CodeTimeout     Code = "TIMEOUT"

	// Permanent codes.
	CodeInvalidTransition Code = "INVALID_TRANSITION" // status change outside the allowed set
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeAlreadyPending    Code = "ALREADY_PENDING" // second bulk-deletion request for a group
	CodeRequestExpired    Code = "REQUEST_EXPIRED" // approval on a stale deletion request
	CodeDuplicateEvent    Code = "DUPLICATE_EVENT" // scoring event already recorded
	CodeUnauthorized      Code = "UNAUTHORIZED"

	// Internal codes.
	CodeInternal   Code = "INTERNAL"
	CodeCorruption Code = "CORRUPTION"
)

// String returns the string representation of the code.
func (c Code) String() string {
	return string(c)
}

// DefaultCategory returns the category a code belongs to unless overridden.
func (c Code) DefaultCategory() Category {
	switch c {
	case CodeConflict, CodeUnavailable, CodeTimeout:
		return CategoryTransient
	case CodeInvalidTransition, CodeNotFound, CodeInvalidInput,
		CodeAlreadyPending, CodeRequestExpired, CodeDuplicateEvent,
		CodeUnauthorized:
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}

// Description returns a human-readable default message for the code.
func (c Code) Description() string {
	switch c {
	case CodeConflict:
		return "concurrent update conflict"
	case CodeUnavailable:
		return "repository unavailable"
	case CodeTimeout:
		return "operation timed out"
	case CodeInvalidTransition:
		return "invalid status transition"
	case CodeNotFound:
		return "not found"
	case CodeInvalidInput:
		return "invalid input"
	case CodeAlreadyPending:
		return "a bulk-deletion request is already pending for this group"
	case CodeRequestExpired:
		return "deletion request has expired"
	case CodeDuplicateEvent:
		return "scoring event already recorded"
	case CodeUnauthorized:
		return "actor not authorized"
	case CodeCorruption:
		return "stored data is corrupted"
	default:
		return "internal error"
	}
}
