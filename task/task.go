package task

import (
	"time"
)

// Status is the top-level status of a task.
type Status string

const (
	// StatusNew is the initial status for tasks due immediately.
	StatusNew Status = "new"

	// StatusScheduled is the initial status for tasks with a future due time.
	StatusScheduled Status = "scheduled"

	// StatusInProgress indicates an assignee has started work.
	StatusInProgress Status = "in_progress"

	// StatusSubmitted indicates an assignee handed in work for review.
	StatusSubmitted Status = "submitted"

	// StatusReviewed indicates the reviewer signed off.
	StatusReviewed Status = "reviewed"

	// StatusApproved indicates the creator accepted the work.
	// Tasks pass through approved and land on completed in one transition.
	StatusApproved Status = "approved"

	// StatusCompleted is the successful terminal status.
	StatusCompleted Status = "completed"

	// StatusRejected is a terminal status that can be reopened.
	StatusRejected Status = "rejected"

	// StatusCancelled is the terminal status for abandoned tasks.
	StatusCancelled Status = "cancelled"

	// StatusOverdue qualifies an open task whose due time has passed.
	// It is not a dead end: submission and approval proceed normally.
	StatusOverdue Status = "overdue"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for statuses with no outgoing transitions
// other than an explicit reopen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// IsOpen returns true for statuses where work has not been handed in yet.
// Only open tasks become overdue.
func (s Status) IsOpen() bool {
	return s == StatusNew || s == StatusScheduled || s == StatusInProgress
}

// IsUnfinished returns true for statuses where the assignees still owe
// work: open statuses plus overdue. Submitted work does not count.
func (s Status) IsUnfinished() bool {
	return s.IsOpen() || s == StatusOverdue
}

// Priority orders tasks for presentation; the core only carries it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ReviewStatus is the reviewer decision within the workflow sub-state.
type ReviewStatus string

const (
	// ReviewPending means a reviewer is configured but has not decided.
	ReviewPending ReviewStatus = "pending"

	// ReviewApproved means the reviewer signed off.
	ReviewApproved ReviewStatus = "approved"

	// ReviewRejected means the reviewer sent the work back.
	ReviewRejected ReviewStatus = "rejected"

	// ReviewSkipped means the task has no reviewer; review is an
	// automatic pass-through.
	ReviewSkipped ReviewStatus = "skipped"
)

// ApprovalStatus is the creator decision within the workflow sub-state.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ReviewState tracks the reviewer's decision.
type ReviewState struct {
	ReviewerID string       `json:"reviewer_id,omitempty"`
	Status     ReviewStatus `json:"status"`
}

// ApprovalState tracks the creator's decision.
type ApprovalState struct {
	CreatorID string         `json:"creator_id"`
	Status    ApprovalStatus `json:"status"`
}

// HistoryEntry is one append-only record of a workflow action.
type HistoryEntry struct {
	Action string    `json:"action"`
	ByID   string    `json:"by_id"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// Workflow is the review/approval sub-state embedded in a task.
// History is append-only: transitions add entries, nothing removes them.
type Workflow struct {
	Review   ReviewState    `json:"review"`
	Approval ApprovalState  `json:"approval"`
	History  []HistoryEntry `json:"history"`
}

// Task is a group-assigned unit of work.
type Task struct {
	ID          string   `json:"id"`
	GroupID     string   `json:"group_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`

	CreatedBy string   `json:"created_by"`
	Assignees []string `json:"assignees"`
	Reviewer  string   `json:"reviewer,omitempty"`

	DueTime   time.Time `json:"due_time"`
	CreatedAt time.Time `json:"created_at"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// OverduePenaltyAt is set once, when the task is still unfinished
	// long past its due time and the scoring penalty has been triggered.
	OverduePenaltyAt *time.Time `json:"overdue_penalty_at,omitempty"`

	Workflow Workflow `json:"workflow"`

	// Set only on instances generated from a recurring template.
	RecurringTemplateID     string `json:"recurring_template_id,omitempty"`
	RecurringInstanceNumber int    `json:"recurring_instance_number,omitempty"`
}

// Clone creates a deep copy of the task.
func (t *Task) Clone() *Task {
	clone := *t

	if t.Assignees != nil {
		clone.Assignees = make([]string, len(t.Assignees))
		copy(clone.Assignees, t.Assignees)
	}
	if t.Workflow.History != nil {
		clone.Workflow.History = make([]HistoryEntry, len(t.Workflow.History))
		copy(clone.Workflow.History, t.Workflow.History)
	}

	clone.SubmittedAt = cloneTime(t.SubmittedAt)
	clone.ReviewedAt = cloneTime(t.ReviewedAt)
	clone.ApprovedAt = cloneTime(t.ApprovedAt)
	clone.CompletedAt = cloneTime(t.CompletedAt)
	clone.OverduePenaltyAt = cloneTime(t.OverduePenaltyAt)

	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// IsAssignee reports whether the given member is assigned to the task.
func (t *Task) IsAssignee(memberID string) bool {
	for _, a := range t.Assignees {
		if a == memberID {
			return true
		}
	}
	return false
}

// appendHistory records a workflow action. History never shrinks.
func (t *Task) appendHistory(action, byID string, at time.Time, note string) {
	t.Workflow.History = append(t.Workflow.History, HistoryEntry{
		Action: action,
		ByID:   byID,
		At:     at,
		Note:   note,
	})
}

// allowedTransitions enumerates the valid status edges. Reopen
// (rejected back to in_progress) is the only backward edge.
var allowedTransitions = map[Status][]Status{
	StatusNew:        {StatusInProgress, StatusOverdue, StatusCancelled},
	StatusScheduled:  {StatusInProgress, StatusOverdue, StatusCancelled},
	StatusInProgress: {StatusSubmitted, StatusOverdue, StatusCancelled},
	StatusSubmitted:  {StatusReviewed, StatusApproved, StatusCompleted, StatusRejected, StatusCancelled},
	StatusReviewed:   {StatusApproved, StatusCompleted, StatusRejected, StatusCancelled},
	StatusApproved:   {StatusCompleted},
	StatusOverdue:    {StatusInProgress, StatusSubmitted, StatusCancelled},
	StatusRejected:   {StatusInProgress},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether the edge from one status to another is
// part of the state machine.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
