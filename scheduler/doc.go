// Package scheduler runs the single periodic loop that evaluates
// recurring templates, sweeps for overdue tasks and flags the scoring
// penalty on tasks left unfinished long past their due time. The
// Ticker interface decouples the loop from wall-clock time so tests
// can replay many cycles instantly.
package scheduler
