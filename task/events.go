package task

import (
	"encoding/json"
	"time"
)

// Bus subjects for task lifecycle events.
const (
	// SubjectCreated carries CreatedEvent payloads.
	SubjectCreated = "task.created"

	// SubjectTransitioned carries TransitionedEvent payloads for every
	// status change.
	SubjectTransitioned = "task.transitioned"

	// SubjectCompleted carries CompletedEvent payloads. The KPI scoring
	// engine consumes these.
	SubjectCompleted = "task.completed"

	// SubjectOverdue carries OverdueEvent payloads, emitted once per
	// task when overdue detection first observes the missed due time.
	SubjectOverdue = "task.overdue"

	// SubjectOverduePenalty carries OverdueEvent payloads, emitted once
	// per task when it has stayed unfinished long past its due time. The
	// KPI scoring engine consumes these.
	SubjectOverduePenalty = "task.overdue_penalty"

	// SubjectDeleted carries DeletedEvent payloads, emitted when a task
	// is removed by an executed deletion request.
	SubjectDeleted = "task.deleted"
)

// CreatedEvent announces a new task, whether user-created or generated
// from a recurring template.
type CreatedEvent struct {
	TaskID              string    `json:"task_id"`
	GroupID             string    `json:"group_id"`
	Title               string    `json:"title"`
	CreatedBy           string    `json:"created_by"`
	Assignees           []string  `json:"assignees"`
	DueTime             time.Time `json:"due_time"`
	RecurringTemplateID string    `json:"recurring_template_id,omitempty"`
}

// TransitionedEvent announces a status change.
type TransitionedEvent struct {
	TaskID  string    `json:"task_id"`
	GroupID string    `json:"group_id"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	ByID    string    `json:"by_id,omitempty"`
	At      time.Time `json:"at"`
}

// CompletedEvent carries everything the scoring engine needs: who was
// assigned, who created the task, and the timing relative to the due
// time.
type CompletedEvent struct {
	TaskID      string    `json:"task_id"`
	GroupID     string    `json:"group_id"`
	CreatedBy   string    `json:"created_by"`
	Assignees   []string  `json:"assignees"`
	DueTime     time.Time `json:"due_time"`
	CompletedAt time.Time `json:"completed_at"`
}

// OverdueEvent announces that an open task missed its due time.
type OverdueEvent struct {
	TaskID     string    `json:"task_id"`
	GroupID    string    `json:"group_id"`
	CreatedBy  string    `json:"created_by"`
	Assignees  []string  `json:"assignees"`
	DueTime    time.Time `json:"due_time"`
	ObservedAt time.Time `json:"observed_at"`
}

// DeletedEvent announces that a task was removed from storage.
type DeletedEvent struct {
	TaskID    string    `json:"task_id"`
	GroupID   string    `json:"group_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// MarshalEvent serializes an event payload for the bus.
func MarshalEvent(event interface{}) ([]byte, error) {
	return json.Marshal(event)
}

// UnmarshalCompleted deserializes a CompletedEvent.
func UnmarshalCompleted(data []byte) (*CompletedEvent, error) {
	var e CompletedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UnmarshalOverdue deserializes an OverdueEvent.
func UnmarshalOverdue(data []byte) (*OverdueEvent, error) {
	var e OverdueEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UnmarshalDeleted deserializes a DeletedEvent.
func UnmarshalDeleted(data []byte) (*DeletedEvent, error) {
	var e DeletedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UnmarshalCreated deserializes a CreatedEvent.
func UnmarshalCreated(data []byte) (*CreatedEvent, error) {
	var e CreatedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UnmarshalTransitioned deserializes a TransitionedEvent.
func UnmarshalTransitioned(data []byte) (*TransitionedEvent, error) {
	var e TransitionedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
