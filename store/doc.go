// Package store provides versioned key-value storage for the task
// coordination core.
//
// Every repository (tasks, recurring templates, deletion requests, KPI
// records) is layered on the Store interface. The revision attached to
// each entry is the optimistic-concurrency token: writers read an entry,
// compute the new value, and call PutRevision with the revision they
// read. A writer that lost a race gets ErrRevisionMismatch and must
// re-read and retry.
//
// Two backends ship with the package:
//
//   - MemoryStore: in-process map, for tests and single-process use
//   - BoltStore: durable single-file storage on bbolt; PutRevision runs
//     inside one write transaction, so compare-and-swap holds across
//     processes sharing the file
package store
