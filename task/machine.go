package task

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/groupkit/bus"
	"github.com/vinayprograms/groupkit/clock"
	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/logging"
)

// Workflow history actions recorded by the state machine.
const (
	ActionCreated          = "created"
	ActionStarted          = "started"
	ActionSubmitted        = "submitted"
	ActionReviewSkipped    = "review_skipped"
	ActionReviewed         = "reviewed"
	ActionReviewRejected   = "review_rejected"
	ActionApproved         = "approved"
	ActionCompleted        = "completed"
	ActionApprovalRejected = "approval_rejected"
	ActionReopened         = "reopened"
	ActionCancelled        = "cancelled"
	ActionOverdue          = "overdue"
	ActionOverduePenalty   = "overdue_penalty"
)

// OverduePenaltyAfter is how long a task may stay unfinished past its
// due time before the scoring penalty triggers.
const OverduePenaltyAfter = 48 * time.Hour

// StateMachine owns all task status transitions. Every mutation goes
// through it: transitions are guarded, history is appended, writes use
// the repository's optimistic versioning, and lifecycle events are
// published on the bus.
type StateMachine struct {
	repo  Repository
	bus   bus.Bus
	clock clock.Clock
	log   *logging.Logger
	idGen func() string
}

// MachineOption configures a StateMachine.
type MachineOption func(*StateMachine)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) MachineOption {
	return func(m *StateMachine) {
		m.log = log.WithComponent("task")
	}
}

// WithIDGenerator sets a custom task ID generator.
func WithIDGenerator(gen func() string) MachineOption {
	return func(m *StateMachine) {
		m.idGen = gen
	}
}

// NewStateMachine creates a state machine over the given repository,
// bus and clock.
func NewStateMachine(repo Repository, b bus.Bus, clk clock.Clock, opts ...MachineOption) *StateMachine {
	m := &StateMachine{
		repo:  repo,
		bus:   b,
		clock: clk,
		log:   logging.Nop(),
		idGen: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create persists a new task in its initial status: scheduled when the
// due time is in the future, new otherwise. The caller fills in title,
// group, creator, assignees, reviewer and due time; everything else is
// set here.
func (m *StateMachine) Create(ctx context.Context, t *Task) (*Task, error) {
	if t == nil || t.Title == "" {
		return nil, errors.New(errors.CodeInvalidInput, "task title is required")
	}
	if t.GroupID == "" {
		return nil, errors.New(errors.CodeInvalidInput, "task group is required")
	}
	if t.CreatedBy == "" {
		return nil, errors.New(errors.CodeInvalidInput, "task creator is required")
	}

	t = t.Clone()
	if t.ID == "" {
		t.ID = m.idGen()
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}

	now := m.clock.Now()
	t.CreatedAt = now
	if t.DueTime.After(now) {
		t.Status = StatusScheduled
	} else {
		t.Status = StatusNew
	}

	reviewStatus := ReviewSkipped
	if t.Reviewer != "" {
		reviewStatus = ReviewPending
	}
	t.Workflow = Workflow{
		Review:   ReviewState{ReviewerID: t.Reviewer, Status: reviewStatus},
		Approval: ApprovalState{CreatorID: t.CreatedBy, Status: ApprovalPending},
	}
	t.appendHistory(ActionCreated, t.CreatedBy, now, "")

	if _, err := m.repo.Save(ctx, t, 0); err != nil {
		return nil, err
	}

	m.publish(SubjectCreated, CreatedEvent{
		TaskID:              t.ID,
		GroupID:             t.GroupID,
		Title:               t.Title,
		CreatedBy:           t.CreatedBy,
		Assignees:           t.Assignees,
		DueTime:             t.DueTime,
		RecurringTemplateID: t.RecurringTemplateID,
	})
	return t, nil
}

// Start moves a task into in_progress on assignee activity.
func (m *StateMachine) Start(ctx context.Context, id, actorID string) (*Task, error) {
	return m.transition(ctx, id, actorID, func(t *Task, now time.Time) error {
		switch t.Status {
		case StatusNew, StatusScheduled, StatusOverdue:
		default:
			return errors.InvalidTransition(t.Status.String(), StatusInProgress.String(), errors.WithTaskID(t.ID))
		}
		if err := requireAssignee(t, actorID); err != nil {
			return err
		}
		t.Status = StatusInProgress
		t.appendHistory(ActionStarted, actorID, now, "")
		return nil
	})
}

// Submit records an assignee handing in work. If no reviewer is
// configured the review stage is an automatic pass-through and the task
// waits on creator approval only.
func (m *StateMachine) Submit(ctx context.Context, id, actorID, note string) (*Task, error) {
	return m.transition(ctx, id, actorID, func(t *Task, now time.Time) error {
		switch t.Status {
		case StatusInProgress, StatusOverdue:
		default:
			return errors.InvalidTransition(t.Status.String(), StatusSubmitted.String(), errors.WithTaskID(t.ID))
		}
		if err := requireAssignee(t, actorID); err != nil {
			return err
		}
		t.Status = StatusSubmitted
		t.SubmittedAt = &now
		t.appendHistory(ActionSubmitted, actorID, now, note)
		if t.Reviewer == "" {
			t.Workflow.Review.Status = ReviewSkipped
			t.appendHistory(ActionReviewSkipped, "", now, "no reviewer configured")
		}
		return nil
	})
}

// Review records the reviewer's decision on a submitted task. Approval
// moves the task to reviewed; rejection moves it to rejected, from
// where it can only be reopened.
func (m *StateMachine) Review(ctx context.Context, id, reviewerID string, approved bool, note string) (*Task, error) {
	return m.transition(ctx, id, reviewerID, func(t *Task, now time.Time) error {
		if t.Status != StatusSubmitted {
			return errors.InvalidTransition(t.Status.String(), StatusReviewed.String(), errors.WithTaskID(t.ID))
		}
		if t.Reviewer == "" {
			return errors.New(errors.CodeInvalidTransition, "task has no reviewer; review is skipped", errors.WithTaskID(t.ID))
		}
		if reviewerID != t.Reviewer {
			return errors.New(errors.CodeUnauthorized, "only the configured reviewer may review", errors.WithTaskID(t.ID))
		}

		t.ReviewedAt = &now
		if approved {
			t.Workflow.Review.Status = ReviewApproved
			t.Status = StatusReviewed
			t.appendHistory(ActionReviewed, reviewerID, now, note)
		} else {
			t.Workflow.Review.Status = ReviewRejected
			t.Status = StatusRejected
			t.appendHistory(ActionReviewRejected, reviewerID, now, note)
		}
		return nil
	})
}

// Approve records the creator accepting the work. Approved and
// completed are a single transition with both timestamps recorded; the
// completion event for the scoring engine fires here.
func (m *StateMachine) Approve(ctx context.Context, id, actorID, note string) (*Task, error) {
	t, err := m.transition(ctx, id, actorID, func(t *Task, now time.Time) error {
		if err := requireApprover(t, actorID); err != nil {
			return err
		}
		switch {
		case t.Status == StatusReviewed:
		case t.Status == StatusSubmitted && t.Reviewer == "":
		default:
			return errors.InvalidTransition(t.Status.String(), StatusApproved.String(), errors.WithTaskID(t.ID))
		}

		t.Workflow.Approval.Status = ApprovalApproved
		t.Status = StatusCompleted
		t.ApprovedAt = &now
		t.CompletedAt = &now
		t.appendHistory(ActionApproved, actorID, now, note)
		t.appendHistory(ActionCompleted, actorID, now, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.publish(SubjectCompleted, CompletedEvent{
		TaskID:      t.ID,
		GroupID:     t.GroupID,
		CreatedBy:   t.CreatedBy,
		Assignees:   t.Assignees,
		DueTime:     t.DueTime,
		CompletedAt: *t.CompletedAt,
	})
	return t, nil
}

// Reject records the creator sending submitted or reviewed work back.
func (m *StateMachine) Reject(ctx context.Context, id, actorID, note string) (*Task, error) {
	return m.transition(ctx, id, actorID, func(t *Task, now time.Time) error {
		if err := requireApprover(t, actorID); err != nil {
			return err
		}
		if t.Status != StatusSubmitted && t.Status != StatusReviewed {
			return errors.InvalidTransition(t.Status.String(), StatusRejected.String(), errors.WithTaskID(t.ID))
		}
		t.Workflow.Approval.Status = ApprovalRejected
		t.Status = StatusRejected
		t.appendHistory(ActionApprovalRejected, actorID, now, note)
		return nil
	})
}

// Reopen moves a rejected task back to in_progress. This is the only
// backward transition; the history entry records it.
func (m *StateMachine) Reopen(ctx context.Context, id, actorID, note string) (*Task, error) {
	return m.transition(ctx, id, actorID, func(t *Task, now time.Time) error {
		if t.Status != StatusRejected {
			return errors.InvalidTransition(t.Status.String(), StatusInProgress.String(), errors.WithTaskID(t.ID))
		}

		t.Status = StatusInProgress
		t.SubmittedAt = nil
		t.ReviewedAt = nil
		t.ApprovedAt = nil
		if t.Reviewer != "" {
			t.Workflow.Review.Status = ReviewPending
		} else {
			t.Workflow.Review.Status = ReviewSkipped
		}
		t.Workflow.Approval.Status = ApprovalPending
		if note == "" {
			note = "reopened after rejection"
		}
		t.appendHistory(ActionReopened, actorID, now, note)
		return nil
	})
}

// Cancel abandons any non-terminal task.
func (m *StateMachine) Cancel(ctx context.Context, id, actorID, note string) (*Task, error) {
	return m.transition(ctx, id, actorID, func(t *Task, now time.Time) error {
		if t.Status.IsTerminal() {
			return errors.InvalidTransition(t.Status.String(), StatusCancelled.String(), errors.WithTaskID(t.ID))
		}
		t.Status = StatusCancelled
		t.appendHistory(ActionCancelled, actorID, now, note)
		return nil
	})
}

// MarkOverdue qualifies an open task whose due time has passed. The
// scheduler's overdue check calls this; the overdue event fires exactly
// once because the transition is only legal out of open statuses.
func (m *StateMachine) MarkOverdue(ctx context.Context, id string) (*Task, error) {
	t, err := m.transition(ctx, id, "", func(t *Task, now time.Time) error {
		if !t.Status.IsOpen() {
			return errors.InvalidTransition(t.Status.String(), StatusOverdue.String(), errors.WithTaskID(t.ID))
		}
		if !t.DueTime.Before(now) {
			return errors.New(errors.CodeInvalidInput, "task is not past due", errors.WithTaskID(t.ID))
		}
		t.Status = StatusOverdue
		t.appendHistory(ActionOverdue, "", now, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.publish(SubjectOverdue, OverdueEvent{
		TaskID:     t.ID,
		GroupID:    t.GroupID,
		CreatedBy:  t.CreatedBy,
		Assignees:  t.Assignees,
		DueTime:    t.DueTime,
		ObservedAt: m.clock.Now(),
	})
	return t, nil
}

// FlagOverduePenalty marks a task that is still unfinished more than
// OverduePenaltyAfter past its due time. The flag sticks to the task, so
// the penalty event fires at most once regardless of how many sweeps
// observe the condition; a second call returns DUPLICATE_EVENT.
func (m *StateMachine) FlagOverduePenalty(ctx context.Context, id string) (*Task, error) {
	t, err := m.transition(ctx, id, "", func(t *Task, now time.Time) error {
		if t.OverduePenaltyAt != nil {
			return errors.New(errors.CodeDuplicateEvent, "overdue penalty already recorded", errors.WithTaskID(t.ID))
		}
		if !t.Status.IsUnfinished() {
			return errors.New(errors.CodeInvalidInput, "task is not unfinished", errors.WithTaskID(t.ID))
		}
		if now.Sub(t.DueTime) <= OverduePenaltyAfter {
			return errors.New(errors.CodeInvalidInput, "task is not long overdue", errors.WithTaskID(t.ID))
		}
		at := now
		t.OverduePenaltyAt = &at
		t.appendHistory(ActionOverduePenalty, "", now, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.publish(SubjectOverduePenalty, OverdueEvent{
		TaskID:     t.ID,
		GroupID:    t.GroupID,
		CreatedBy:  t.CreatedBy,
		Assignees:  t.Assignees,
		DueTime:    t.DueTime,
		ObservedAt: *t.OverduePenaltyAt,
	})
	return t, nil
}

// Get retrieves a task.
func (m *StateMachine) Get(ctx context.Context, id string) (*Task, error) {
	t, _, err := m.repo.Get(ctx, id)
	return t, err
}

// transition runs one guarded read-modify-write cycle. A concurrent
// writer winning the race surfaces as a CONFLICT error; the task is
// left untouched and the caller retries with fresh state.
func (m *StateMachine) transition(ctx context.Context, id, actorID string, mutate func(*Task, time.Time) error) (*Task, error) {
	t, version, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := t.Status
	now := m.clock.Now()
	if err := mutate(t, now); err != nil {
		return nil, err
	}

	if _, err := m.repo.Save(ctx, t, version); err != nil {
		return nil, err
	}

	if t.Status != from {
		m.publish(SubjectTransitioned, TransitionedEvent{
			TaskID:  t.ID,
			GroupID: t.GroupID,
			From:    from,
			To:      t.Status,
			ByID:    actorID,
			At:      now,
		})
		m.log.Debug("transition", map[string]interface{}{
			"task": t.ID,
			"from": from,
			"to":   t.Status,
		})
	}
	return t, nil
}

// publish sends an event, logging failures. Event delivery is
// best-effort and never fails the triggering transition.
func (m *StateMachine) publish(subject string, event interface{}) {
	data, err := MarshalEvent(event)
	if err != nil {
		m.log.Error("marshal event", map[string]interface{}{"subject": subject, "error": err.Error()})
		return
	}
	if err := m.bus.Publish(subject, data); err != nil {
		m.log.Warn("publish event", map[string]interface{}{"subject": subject, "error": err.Error()})
	}
}

func requireAssignee(t *Task, actorID string) error {
	if len(t.Assignees) == 0 || t.IsAssignee(actorID) {
		return nil
	}
	return errors.New(errors.CodeUnauthorized, "actor is not an assignee", errors.WithTaskID(t.ID))
}

func requireApprover(t *Task, actorID string) error {
	if actorID == t.Workflow.Approval.CreatorID {
		return nil
	}
	return errors.New(errors.CodeUnauthorized, "only the task creator may approve", errors.WithTaskID(t.ID))
}
