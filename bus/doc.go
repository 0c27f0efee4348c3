// Package bus provides the pub/sub channel over which task lifecycle
// events and group notifications travel.
//
// The state machine publishes events ("task.created", "task.completed",
// "task.overdue", ...); the KPI scoring engine, search indexer and
// notification sinks subscribe. Components never call each other
// directly, so each one can be tested against a MemoryBus.
//
// # Implementations
//
//   - MemoryBus: in-process channels for tests and single-process use
//   - NATSBus: NATS-backed, for multi-process deployments
//
// # Queue groups
//
// Queue subscriptions load-balance messages across members of the same
// queue. Multiple scoring workers can consume one event stream without
// double-scoring:
//
//	sub, _ := b.QueueSubscribe("task.completed", "kpi-workers")
//	for msg := range sub.Messages() {
//	    // exactly one worker in the group sees each event
//	}
package bus
