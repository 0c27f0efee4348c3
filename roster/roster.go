// Package roster abstracts group membership counting.
//
// The chat platform owns membership; the core only needs the member
// count of a group, and only at deletion-request creation time, to
// derive the approval quorum.
package roster

import (
	"context"
	"sync"

	"github.com/vinayprograms/groupkit/errors"
)

// Roster reports group sizes.
type Roster interface {
	// CountMembers returns the number of members in a group.
	CountMembers(ctx context.Context, groupID string) (int, error)
}

// StaticRoster is a fixed map of group sizes, for tests and
// single-process deployments where membership is configured statically.
type StaticRoster struct {
	mu     sync.RWMutex
	counts map[string]int
}

// NewStaticRoster creates an empty static roster.
func NewStaticRoster() *StaticRoster {
	return &StaticRoster{counts: make(map[string]int)}
}

// SetMembers sets a group's size.
func (r *StaticRoster) SetMembers(groupID string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[groupID] = count
}

// CountMembers returns the number of members in a group.
func (r *StaticRoster) CountMembers(ctx context.Context, groupID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count, ok := r.counts[groupID]
	if !ok {
		return 0, errors.NotFound("unknown group "+groupID, errors.WithGroupID(groupID))
	}
	return count, nil
}
