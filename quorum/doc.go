// Package quorum coordinates member-approved bulk deletion of tasks.
//
// A group may have at most one pending deletion request at a time. The
// number of approvals needed is fixed when the request is created, at
// one third of the group's membership rounded up (never below one).
// Approvals are idempotent per member, requests expire after a TTL,
// and execution happens at most once: the status flip to executed is a
// compare-and-swap on the request version, so racing approvals cannot
// both trigger deletion. Each removed task is announced on the bus so
// downstream consumers, the search index in particular, drop their
// copies.
package quorum
