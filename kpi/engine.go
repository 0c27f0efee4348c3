package kpi

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/groupkit/bus"
	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/logging"
	"github.com/vinayprograms/groupkit/task"
)

// Timeliness boundaries relative to the due time.
const (
	earlyMargin  = 24 * time.Hour
	onTimeMargin = 24 * time.Hour
)

// Points holds the scoring table. All values are configurable; the
// defaults match the product's initial tuning.
type Points struct {
	AssigneeEarly      int `toml:"assignee_early"`
	AssigneeOnTime     int `toml:"assignee_ontime"`
	AssigneeLate       int `toml:"assignee_late"`
	PenaltyOverdue     int `toml:"penalty_overdue"`
	CreatorCompletion  int `toml:"creator_completion"`
	CreatorOnTimeBonus int `toml:"creator_ontime_bonus"`
	StreakBonus        int `toml:"streak_bonus"`

	// StreakLength is how many consecutive on-time or early
	// completions earn a streak bonus.
	StreakLength int `toml:"streak_length"`
}

// DefaultPoints returns the default scoring table.
func DefaultPoints() Points {
	return Points{
		AssigneeEarly:      2,
		AssigneeOnTime:     1,
		AssigneeLate:       -1,
		PenaltyOverdue:     -2,
		CreatorCompletion:  1,
		CreatorOnTimeBonus: 1,
		StreakBonus:        3,
		StreakLength:       5,
	}
}

func (p Points) forType(t Type) int {
	switch t {
	case TypeAssigneeEarly:
		return p.AssigneeEarly
	case TypeAssigneeOnTime:
		return p.AssigneeOnTime
	case TypeAssigneeLate:
		return p.AssigneeLate
	case TypeCreatorCompletion:
		return p.CreatorCompletion
	case TypeCreatorOnTimeBonus:
		return p.CreatorOnTimeBonus
	case TypeStreakBonus:
		return p.StreakBonus
	default:
		return p.PenaltyOverdue
	}
}

// Engine scores task completion and overdue events into KPI records
// and serves leaderboard queries.
type Engine struct {
	repo   Repository
	points Points
	log    *logging.Logger
	idGen  func() string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPoints overrides the scoring table.
func WithPoints(p Points) EngineOption {
	return func(e *Engine) {
		e.points = p
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log.WithComponent("kpi")
	}
}

// WithIDGenerator sets a custom record ID generator.
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *Engine) {
		e.idGen = gen
	}
}

// NewEngine creates a scoring engine.
func NewEngine(repo Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:   repo,
		points: DefaultPoints(),
		log:    logging.Nop(),
		idGen:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify buckets a completion by its timing relative to the due
// time: early when at least 24h ahead, on time within a day either
// way, late beyond that.
func Classify(completedAt, dueTime time.Time) Type {
	delta := completedAt.Sub(dueTime)
	switch {
	case delta <= -earlyMargin:
		return TypeAssigneeEarly
	case delta <= onTimeMargin:
		return TypeAssigneeOnTime
	default:
		return TypeAssigneeLate
	}
}

// HandleCompleted scores a completion: one assignee bucket per
// assignee, a creator completion credit, and an on-time bonus for the
// creator when the task was not late. Re-delivery of the same event
// is absorbed by the per-(task, type, user) uniqueness key.
func (e *Engine) HandleCompleted(ctx context.Context, ev *task.CompletedEvent) error {
	bucket := Classify(ev.CompletedAt, ev.DueTime)

	for _, assignee := range ev.Assignees {
		written, err := e.record(ctx, ev.GroupID, ev.TaskID, assignee, bucket, ev.CompletedAt)
		if err != nil {
			return err
		}
		if written && (bucket == TypeAssigneeEarly || bucket == TypeAssigneeOnTime) {
			if err := e.checkStreak(ctx, ev.GroupID, ev.TaskID, assignee, ev.CompletedAt); err != nil {
				return err
			}
		}
	}

	if ev.CreatedBy != "" {
		if _, err := e.record(ctx, ev.GroupID, ev.TaskID, ev.CreatedBy, TypeCreatorCompletion, ev.CompletedAt); err != nil {
			return err
		}
		if bucket != TypeAssigneeLate {
			if _, err := e.record(ctx, ev.GroupID, ev.TaskID, ev.CreatedBy, TypeCreatorOnTimeBonus, ev.CompletedAt); err != nil {
				return err
			}
		}
	}
	return nil
}

// HandleOverduePenalty records the overdue penalty for each assignee.
// The state machine emits the penalty event only once a task has
// stayed unfinished past the grace period, and the uniqueness key
// absorbs redelivery on top of that.
func (e *Engine) HandleOverduePenalty(ctx context.Context, ev *task.OverdueEvent) error {
	for _, assignee := range ev.Assignees {
		if _, err := e.record(ctx, ev.GroupID, ev.TaskID, assignee, TypePenaltyOverdue, ev.ObservedAt); err != nil {
			return err
		}
	}
	return nil
}

// Leaderboard returns the group's ranked scores over a window.
func (e *Engine) Leaderboard(ctx context.Context, groupID string, w Window) ([]UserScore, error) {
	return e.repo.Aggregate(ctx, groupID, w)
}

// record writes one scoring record, reporting whether it was new.
func (e *Engine) record(ctx context.Context, groupID, taskID, userID string, t Type, at time.Time) (bool, error) {
	rec := &Record{
		ID:         e.idGen(),
		UserID:     userID,
		GroupID:    groupID,
		TaskID:     taskID,
		Type:       t,
		Role:       RoleFor(t),
		Points:     e.points.forType(t),
		OccurredAt: at,
	}
	written, err := e.repo.RecordIfAbsent(ctx, rec)
	if err != nil {
		return false, err
	}
	if !written {
		e.log.Debug("duplicate scoring event absorbed", map[string]interface{}{
			"task": taskID,
			"type": string(t),
			"user": userID,
		})
	}
	return written, nil
}

// checkStreak awards a bonus each time the user's run of consecutive
// on-time or early completions reaches a multiple of the configured
// streak length. Creator and bonus records do not interrupt a run;
// a late completion or an overdue penalty resets it.
func (e *Engine) checkStreak(ctx context.Context, groupID, taskID, userID string, at time.Time) error {
	if e.points.StreakLength <= 0 {
		return nil
	}

	recent, err := e.repo.RecentByUser(ctx, userID, 0)
	if err != nil {
		return err
	}

	run := 0
	for _, rec := range recent {
		if rec.onTime() {
			run++
			continue
		}
		if rec.breaksStreak() {
			break
		}
	}
	if run == 0 || run%e.points.StreakLength != 0 {
		return nil
	}

	written, err := e.record(ctx, groupID, taskID, userID, TypeStreakBonus, at)
	if err != nil {
		return err
	}
	if written {
		e.log.Info("streak bonus awarded", map[string]interface{}{
			"user":   userID,
			"group":  groupID,
			"streak": run,
		})
	}
	return nil
}

// Run consumes completion and overdue-penalty events from the bus
// until the context is cancelled. Scoring failures are logged and the
// loop keeps going; the uniqueness key makes redelivery safe.
func (e *Engine) Run(ctx context.Context, b bus.Bus) error {
	completed, err := b.Subscribe(task.SubjectCompleted)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "subscribe completed events")
	}
	defer completed.Unsubscribe()

	overdue, err := b.Subscribe(task.SubjectOverduePenalty)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "subscribe overdue penalty events")
	}
	defer overdue.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-completed.Messages():
			if !ok {
				return nil
			}
			ev, err := task.UnmarshalCompleted(msg.Data)
			if err != nil {
				e.log.Error("decode completed event", map[string]interface{}{"error": err.Error()})
				continue
			}
			if err := e.HandleCompleted(ctx, ev); err != nil {
				e.log.Error("score completion", map[string]interface{}{
					"task":  ev.TaskID,
					"error": err.Error(),
				})
			}
		case msg, ok := <-overdue.Messages():
			if !ok {
				return nil
			}
			ev, err := task.UnmarshalOverdue(msg.Data)
			if err != nil {
				e.log.Error("decode overdue penalty event", map[string]interface{}{"error": err.Error()})
				continue
			}
			if err := e.HandleOverduePenalty(ctx, ev); err != nil {
				e.log.Error("score overdue penalty", map[string]interface{}{
					"task":  ev.TaskID,
					"error": err.Error(),
				})
			}
		}
	}
}
