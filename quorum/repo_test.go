package quorum

import (
	"context"
	"testing"
	"time"

	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/store"
)

func TestRequestRepositoryRoundTrip(t *testing.T) {
	repo := NewStoreRequestRepository(store.NewMemoryStore())
	ctx := context.Background()

	req := &Request{
		ID:                     "r1",
		GroupID:                "g1",
		RequestedBy:            "alice",
		TaskIDs:                []string{"t1", "t2"},
		TotalMembersAtCreation: 7,
		RequiredApprovals:      3,
		Status:                 StatusPending,
		CreatedAt:              time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	version, err := repo.Save(ctx, req, 0)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, gotVersion, err := repo.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if gotVersion != version {
		t.Errorf("version = %d, want %d", gotVersion, version)
	}
	if got.GroupID != "g1" || len(got.TaskIDs) != 2 || got.RequiredApprovals != 3 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestRequestRepositoryPendingForGroup(t *testing.T) {
	repo := NewStoreRequestRepository(store.NewMemoryStore())
	ctx := context.Background()

	if _, _, err := repo.PendingForGroup(ctx, "g1"); !errors.Is(err, errors.CodeNotFound) {
		t.Fatalf("empty store: expected NOT_FOUND, got %v", err)
	}

	resolved := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	done := &Request{ID: "r1", GroupID: "g1", Status: StatusExecuted, ResolvedAt: &resolved}
	if _, err := repo.Save(ctx, done, 0); err != nil {
		t.Fatalf("save executed request: %v", err)
	}
	if _, _, err := repo.PendingForGroup(ctx, "g1"); !errors.Is(err, errors.CodeNotFound) {
		t.Errorf("executed request should not count as pending, got %v", err)
	}

	open := &Request{ID: "r2", GroupID: "g1", Status: StatusPending}
	if _, err := repo.Save(ctx, open, 0); err != nil {
		t.Fatalf("save pending request: %v", err)
	}
	got, _, err := repo.PendingForGroup(ctx, "g1")
	if err != nil {
		t.Fatalf("PendingForGroup failed: %v", err)
	}
	if got.ID != "r2" {
		t.Errorf("pending request = %s, want r2", got.ID)
	}

	// Requests in other groups are invisible.
	if _, _, err := repo.PendingForGroup(ctx, "g2"); !errors.Is(err, errors.CodeNotFound) {
		t.Errorf("other group: expected NOT_FOUND, got %v", err)
	}
}

func TestRequestRepositoryStaleSaveConflicts(t *testing.T) {
	repo := NewStoreRequestRepository(store.NewMemoryStore())
	ctx := context.Background()

	req := &Request{ID: "r1", GroupID: "g1", Status: StatusPending}
	version, err := repo.Save(ctx, req, 0)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	req.Approvals = []string{"bob"}
	if _, err := repo.Save(ctx, req, version); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	// A writer holding the old version loses.
	req.Approvals = []string{"carol"}
	if _, err := repo.Save(ctx, req, version); !errors.Is(err, errors.CodeConflict) {
		t.Errorf("expected CONFLICT on stale version, got %v", err)
	}
}
