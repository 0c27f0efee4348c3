// Package errors provides structured errors for the task coordination core.
//
// Every failure surfaced by the state machine, recurrence engine, quorum
// coordinator and scoring engine carries a Code identifying the failure
// type and a Category describing its retry semantics:
//
//   - transient: retry may succeed (repository outage, lost CAS race)
//   - permanent: retry will not help (disallowed transition, expired request)
//   - internal: unexpected errors and corrupted state
//
// # Usage
//
// Create errors with a code:
//
//	return errors.InvalidTransition(string(cur), string(next))
//
// Wrap repository failures:
//
//	if err := repo.Save(t, v); err != nil {
//	    return errors.WrapWithCode(err, errors.CodeUnavailable, "save task")
//	}
//
// Callers branch on codes, not messages:
//
//	if errors.Is(err, errors.CodeConflict) {
//	    // re-read and retry with fresh state
//	}
package errors
