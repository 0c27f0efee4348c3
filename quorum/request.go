package quorum

import (
	"time"
)

// Status of a deletion request. Transitions only go forward:
// pending → executed or pending → cancelled.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuted  Status = "executed"
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Request is a pending bulk-deletion awaiting member approvals.
type Request struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id"`
	RequestedBy string `json:"requested_by"`

	// TaskIDs is fixed at creation time. Tasks added to the group
	// afterwards are unaffected by execution.
	TaskIDs []string `json:"task_ids"`

	// TotalMembersAtCreation is the group size the quorum was derived
	// from.
	TotalMembersAtCreation int `json:"total_members_at_creation"`

	// RequiredApprovals is max(ceil(members/3), 1).
	RequiredApprovals int `json:"required_approvals"`

	// Approvals holds distinct member IDs. Repeated approvals from the
	// same member are no-ops.
	Approvals []string `json:"approvals"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
}

// RequiredApprovals derives the quorum for a group of the given size:
// one third of the members, rounded up, and never less than one.
func RequiredApprovals(totalMembers int) int {
	if totalMembers <= 1 {
		return 1
	}
	return (totalMembers + 2) / 3
}

// HasApproved reports whether the member already voted.
func (r *Request) HasApproved(memberID string) bool {
	for _, id := range r.Approvals {
		if id == memberID {
			return true
		}
	}
	return false
}

// Remaining returns how many more approvals are needed.
func (r *Request) Remaining() int {
	remaining := r.RequiredApprovals - len(r.Approvals)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone creates a deep copy of the request.
func (r *Request) Clone() *Request {
	clone := *r
	if r.TaskIDs != nil {
		clone.TaskIDs = make([]string, len(r.TaskIDs))
		copy(clone.TaskIDs, r.TaskIDs)
	}
	if r.Approvals != nil {
		clone.Approvals = make([]string, len(r.Approvals))
		copy(clone.Approvals, r.Approvals)
	}
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		clone.ResolvedAt = &at
	}
	return &clone
}
