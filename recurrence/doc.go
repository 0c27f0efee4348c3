// Package recurrence generates task instances from recurring templates.
//
// A Template describes a schedule (daily, weekly, monthly, quarterly or
// a custom combination) plus the task fields to stamp onto each
// instance. On every scheduler tick the Engine computes, per active
// template, whether the next due point has arrived and creates at most
// one task for it through the task state machine.
//
// # Schedule semantics
//
// All date arithmetic runs in the template's timezone, so an instance
// due at 09:00 local stays at 09:00 across DST shifts. Monthly rules
// anchor on a day-of-month and clamp to shorter months without losing
// the anchor: Jan 31 → Feb 28 (or 29) → Mar 31 → Apr 30.
//
// # Catch-up
//
// A template whose scheduler was down for many periods does not
// backfill. It generates exactly one instance for the most recent
// missed due point, advances the cursor there, and resumes
// one-per-period generation on subsequent ticks.
//
// # Idempotency
//
// The generation cursor (LastGeneratedDueTime) is the idempotency
// token. Re-running a tick without the clock advancing produces no new
// instances, and a failed instance creation leaves the cursor untouched
// so the same due point is retried on the next tick.
package recurrence
