package roster

import (
	"context"
	"testing"

	"github.com/vinayprograms/groupkit/errors"
)

func TestStaticRoster(t *testing.T) {
	r := NewStaticRoster()
	ctx := context.Background()

	r.SetMembers("g1", 7)
	count, err := r.CountMembers(ctx, "g1")
	if err != nil {
		t.Fatalf("CountMembers failed: %v", err)
	}
	if count != 7 {
		t.Errorf("count = %d, want 7", count)
	}

	// Membership changes are visible to later reads.
	r.SetMembers("g1", 4)
	count, err = r.CountMembers(ctx, "g1")
	if err != nil {
		t.Fatalf("CountMembers failed: %v", err)
	}
	if count != 4 {
		t.Errorf("count after update = %d, want 4", count)
	}

	if _, err := r.CountMembers(ctx, "unknown"); !errors.Is(err, errors.CodeNotFound) {
		t.Errorf("unknown group: expected NOT_FOUND, got %v", err)
	}
}
