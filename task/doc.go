// Package task implements the task model and its status state machine.
//
// A task moves through a fixed set of statuses:
//
//	new/scheduled → in_progress → submitted → reviewed → approved → completed
//
// with three extra edges: any non-terminal status can be cancelled, any
// open status can become overdue once its due time passes, and a
// rejected task can be explicitly reopened back to in_progress (the
// only backward transition).
//
// Review and approval are a workflow sub-state inside the task, with
// typed ReviewState and ApprovalState and an append-only history of
// every action. A task with no reviewer configured skips the review
// stage automatically and waits on creator approval alone.
//
// # Concurrency
//
// All writes go through Repository.Save with the version returned by
// the previous read. Two clients racing on the same task serialize on
// that version: the loser gets a CONFLICT error and must re-read. The
// state machine itself holds no mutable state, so one instance can be
// shared freely.
//
// # Events
//
// Every status change publishes a TransitionedEvent; completion and
// overdue detection additionally publish CompletedEvent and
// OverdueEvent. A task still unfinished past the penalty grace period
// gets a one-time overdue-penalty event, which the KPI scoring engine
// consumes alongside completions. Publishing is best-effort: a bus
// failure is logged and never rolls back the transition.
package task
