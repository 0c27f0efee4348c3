package scheduler

import (
	"context"

	"github.com/vinayprograms/groupkit/clock"
	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/logging"
	"github.com/vinayprograms/groupkit/recurrence"
	"github.com/vinayprograms/groupkit/task"
)

// TickResult summarizes one scheduler cycle.
type TickResult struct {
	// Generated counts recurring task instances created this cycle.
	Generated int

	// MarkedOverdue counts tasks that crossed their due time.
	MarkedOverdue int

	// PenaltiesFlagged counts tasks still unfinished long past their
	// due time whose scoring penalty was triggered this cycle.
	PenaltiesFlagged int
}

// Runner drives the periodic work: recurring-instance generation and
// overdue detection. One runner per process; both passes run on the
// same tick so there are no other background loops.
type Runner struct {
	recurrence *recurrence.Engine
	machine    *task.StateMachine
	tasks      task.Repository
	clock      clock.Clock
	log        *logging.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log.WithComponent("scheduler")
	}
}

// NewRunner creates a scheduler runner.
func NewRunner(rec *recurrence.Engine, machine *task.StateMachine, tasks task.Repository, clk clock.Clock, opts ...RunnerOption) *Runner {
	r := &Runner{
		recurrence: rec,
		machine:    machine,
		tasks:      tasks,
		clock:      clk,
		log:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run ticks until the context is cancelled. A failed cycle is logged
// and retried on the next tick; templates whose generation failed have
// not advanced their cursor, so nothing is skipped.
func (r *Runner) Run(ctx context.Context, ticker Ticker) error {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticker.C():
			if !ok {
				return nil
			}
			result, err := r.RunOnce(ctx)
			if err != nil {
				r.log.Error("tick failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			if result.Generated > 0 || result.MarkedOverdue > 0 || result.PenaltiesFlagged > 0 {
				r.log.Info("tick", map[string]interface{}{
					"generated": result.Generated,
					"overdue":   result.MarkedOverdue,
					"penalties": result.PenaltiesFlagged,
				})
			}
		}
	}
}

// RunOnce executes a single cycle: recurrence evaluation first, then
// the overdue sweep, then the overdue-penalty sweep. An instance
// generated past its due time in this same cycle is picked up by the
// sweep immediately.
func (r *Runner) RunOnce(ctx context.Context) (TickResult, error) {
	var result TickResult

	generated, err := r.recurrence.Tick(ctx)
	if err != nil {
		return result, err
	}
	result.Generated = generated

	marked, err := r.sweepOverdue(ctx)
	if err != nil {
		return result, err
	}
	result.MarkedOverdue = marked

	flagged, err := r.sweepPenalties(ctx)
	if err != nil {
		return result, err
	}
	result.PenaltiesFlagged = flagged
	return result, nil
}

// sweepOverdue qualifies open tasks whose due time has passed.
// Per-task failures are logged and skipped; a task that lost a
// concurrent transition race is simply no longer open.
func (r *Runner) sweepOverdue(ctx context.Context) (int, error) {
	due, err := r.tasks.ListDueForOverdueCheck(ctx, r.clock.Now())
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, t := range due {
		if _, err := r.machine.MarkOverdue(ctx, t.ID); err != nil {
			if errors.Is(err, errors.CodeInvalidTransition) || errors.Is(err, errors.CodeConflict) {
				continue
			}
			r.log.Warn("overdue check", map[string]interface{}{
				"task":  t.ID,
				"error": err.Error(),
			})
			continue
		}
		marked++
	}
	return marked, nil
}

// sweepPenalties flags tasks still unfinished more than
// task.OverduePenaltyAfter past their due time. The flag persists on
// the task, so a task is flagged in exactly one cycle.
func (r *Runner) sweepPenalties(ctx context.Context) (int, error) {
	cutoff := r.clock.Now().Add(-task.OverduePenaltyAfter)
	due, err := r.tasks.ListDueForPenaltyCheck(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, t := range due {
		if _, err := r.machine.FlagOverduePenalty(ctx, t.ID); err != nil {
			if errors.Is(err, errors.CodeDuplicateEvent) || errors.Is(err, errors.CodeConflict) {
				continue
			}
			r.log.Warn("penalty check", map[string]interface{}{
				"task":  t.ID,
				"error": err.Error(),
			})
			continue
		}
		flagged++
	}
	return flagged, nil
}
