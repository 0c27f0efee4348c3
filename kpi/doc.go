// Package kpi scores task activity into per-user point records and
// aggregates them into group leaderboards.
//
// The engine consumes completion and overdue-penalty events. Each
// completion is classified by its timing against the due time into
// exactly one assignee bucket (early, on time, late), plus creator
// credits and an optional streak bonus for sustained on-time work.
// A task still unfinished long past its due time costs its assignees
// a one-time penalty. Every record is keyed by
// (task, type, user), so redelivered or re-evaluated events never
// double-score.
package kpi
