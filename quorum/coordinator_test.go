package quorum

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vinayprograms/groupkit/bus"
	"github.com/vinayprograms/groupkit/clock"
	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/notify"
	"github.com/vinayprograms/groupkit/roster"
	"github.com/vinayprograms/groupkit/store"
	"github.com/vinayprograms/groupkit/task"
)

var quorumStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type quorumFixture struct {
	coord *Coordinator
	tasks *countingTaskRepo
	clk   *clock.Fake
	sink  *notify.MemorySink
	bus   *bus.MemoryBus
}

// countingTaskRepo counts Delete calls per task so tests can verify
// execution happens at most once.
type countingTaskRepo struct {
	task.Repository
	mu      sync.Mutex
	deletes map[string]int
}

func (r *countingTaskRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	r.deletes[id]++
	r.mu.Unlock()
	return r.Repository.Delete(ctx, id)
}

func (r *countingTaskRepo) deleteCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deletes[id]
}

func newQuorumFixture(t *testing.T, members int) *quorumFixture {
	t.Helper()
	clk := clock.NewFake(quorumStart)
	tasks := &countingTaskRepo{
		Repository: task.NewStoreRepository(store.NewMemoryStore()),
		deletes:    make(map[string]int),
	}
	groups := roster.NewStaticRoster()
	groups.SetMembers("g1", members)
	sink := notify.NewMemorySink()
	b := bus.NewMemoryBus(bus.DefaultConfig())
	t.Cleanup(func() { b.Close() })

	var n atomic.Int64
	coord := NewCoordinator(NewStoreRequestRepository(store.NewMemoryStore()), tasks, groups, clk,
		WithNotifier(sink),
		WithBus(b),
		WithIDGenerator(func() string {
			return fmt.Sprintf("req-%d", n.Add(1))
		}),
	)
	return &quorumFixture{coord: coord, tasks: tasks, clk: clk, sink: sink, bus: b}
}

func (f *quorumFixture) seedTasks(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		tk := &task.Task{
			ID:        id,
			GroupID:   "g1",
			Title:     "task " + id,
			Status:    task.StatusNew,
			CreatedBy: "alice",
			Assignees: []string{"bob"},
			CreatedAt: quorumStart,
		}
		if _, err := f.tasks.Save(context.Background(), tk, 0); err != nil {
			t.Fatalf("seed task %s: %v", id, err)
		}
	}
}

func TestRequiredApprovals(t *testing.T) {
	cases := []struct {
		members int
		want    int
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{6, 2},
		{7, 3},
		{9, 3},
		{10, 4},
	}
	for _, c := range cases {
		if got := RequiredApprovals(c.members); got != c.want {
			t.Errorf("RequiredApprovals(%d) = %d, want %d", c.members, got, c.want)
		}
	}
}

func TestCreateRequestDerivesQuorum(t *testing.T) {
	f := newQuorumFixture(t, 7)
	ctx := context.Background()

	req, err := f.coord.CreateRequest(ctx, "g1", []string{"t1", "t2"}, "alice")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if req.RequiredApprovals != 3 {
		t.Errorf("required approvals = %d, want 3", req.RequiredApprovals)
	}
	if req.TotalMembersAtCreation != 7 {
		t.Errorf("total members = %d, want 7", req.TotalMembersAtCreation)
	}
	if req.Status != StatusPending {
		t.Errorf("status = %s, want pending", req.Status)
	}
	if len(f.sink.Messages()) != 1 {
		t.Errorf("expected a creation notification, got %d messages", len(f.sink.Messages()))
	}
}

func TestCreateRequestRejectsSecondPending(t *testing.T) {
	f := newQuorumFixture(t, 5)
	ctx := context.Background()

	if _, err := f.coord.CreateRequest(ctx, "g1", []string{"t1"}, "alice"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	_, err := f.coord.CreateRequest(ctx, "g1", []string{"t2"}, "bob")
	if !errors.Is(err, errors.CodeAlreadyPending) {
		t.Fatalf("expected ALREADY_PENDING, got %v", err)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	f := newQuorumFixture(t, 5)
	ctx := context.Background()

	if _, err := f.coord.CreateRequest(ctx, "g1", nil, "alice"); !errors.Is(err, errors.CodeInvalidInput) {
		t.Errorf("empty task list: expected INVALID_INPUT, got %v", err)
	}
	if _, err := f.coord.CreateRequest(ctx, "", []string{"t1"}, "alice"); !errors.Is(err, errors.CodeInvalidInput) {
		t.Errorf("empty group: expected INVALID_INPUT, got %v", err)
	}
}

func TestApprovalIsIdempotent(t *testing.T) {
	f := newQuorumFixture(t, 7)
	ctx := context.Background()

	req, err := f.coord.CreateRequest(ctx, "g1", []string{"t1"}, "alice")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	approvals, remaining, err := f.coord.RecordApproval(ctx, req.ID, "bob")
	if err != nil {
		t.Fatalf("first approval failed: %v", err)
	}
	if approvals != 1 || remaining != 2 {
		t.Errorf("after first approval got (%d, %d), want (1, 2)", approvals, remaining)
	}

	approvals, remaining, err = f.coord.RecordApproval(ctx, req.ID, "bob")
	if err != nil {
		t.Fatalf("repeat approval failed: %v", err)
	}
	if approvals != 1 || remaining != 2 {
		t.Errorf("repeat approval changed counts to (%d, %d), want (1, 2)", approvals, remaining)
	}
}

func TestQuorumExecutesDeletion(t *testing.T) {
	f := newQuorumFixture(t, 7)
	ctx := context.Background()
	f.seedTasks(t, "t1", "t2", "t3")

	req, err := f.coord.CreateRequest(ctx, "g1", []string{"t1", "t2"}, "alice")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	for _, member := range []string{"bob", "carol"} {
		if _, _, err := f.coord.RecordApproval(ctx, req.ID, member); err != nil {
			t.Fatalf("approval by %s failed: %v", member, err)
		}
	}
	// The third approval reaches the quorum.
	approvals, remaining, err := f.coord.RecordApproval(ctx, req.ID, "dave")
	if err != nil {
		t.Fatalf("final approval failed: %v", err)
	}
	if approvals != 3 || remaining != 0 {
		t.Errorf("final approval got (%d, %d), want (3, 0)", approvals, remaining)
	}

	for _, id := range []string{"t1", "t2"} {
		if _, _, err := f.tasks.Get(ctx, id); !errors.Is(err, errors.CodeNotFound) {
			t.Errorf("task %s should be deleted, got %v", id, err)
		}
	}
	// t3 was not part of the request and survives.
	if _, _, err := f.tasks.Get(ctx, "t3"); err != nil {
		t.Errorf("task t3 should survive: %v", err)
	}

	// A vote after execution is rejected.
	if _, _, err := f.coord.RecordApproval(ctx, req.ID, "erin"); !errors.Is(err, errors.CodeRequestExpired) {
		t.Errorf("approval after execution: expected REQUEST_EXPIRED, got %v", err)
	}
}

func TestExecutionPublishesDeletedEvents(t *testing.T) {
	f := newQuorumFixture(t, 6) // quorum of 2
	ctx := context.Background()
	f.seedTasks(t, "t1", "t2")

	sub, err := f.bus.Subscribe(task.SubjectDeleted)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	req, err := f.coord.CreateRequest(ctx, "g1", []string{"t1", "t2"}, "alice")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	for _, member := range []string{"bob", "carol"} {
		if _, _, err := f.coord.RecordApproval(ctx, req.ID, member); err != nil {
			t.Fatalf("approval by %s failed: %v", member, err)
		}
	}

	// One event per removed task, so consumers like the search index
	// can drop their copies.
	got := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.Messages():
			event, err := task.UnmarshalDeleted(msg.Data)
			if err != nil {
				t.Fatalf("bad deleted event: %v", err)
			}
			if event.GroupID != "g1" {
				t.Errorf("event group = %s, want g1", event.GroupID)
			}
			got[event.TaskID] = true
		case <-time.After(time.Second):
			t.Fatalf("received %d deleted events, want 2", i)
		}
	}
	if !got["t1"] || !got["t2"] {
		t.Errorf("deleted events = %v, want t1 and t2", got)
	}
}

func TestQuorumExecutesAtMostOnce(t *testing.T) {
	f := newQuorumFixture(t, 6) // quorum of 2
	ctx := context.Background()
	f.seedTasks(t, "t1")

	req, err := f.coord.CreateRequest(ctx, "g1", []string{"t1"}, "alice")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	var wg sync.WaitGroup
	for _, member := range []string{"bob", "carol", "dave", "erin"} {
		wg.Add(1)
		go func(m string) {
			defer wg.Done()
			f.coord.RecordApproval(ctx, req.ID, m)
		}(member)
	}
	wg.Wait()

	if got := f.tasks.deleteCount("t1"); got != 1 {
		t.Errorf("task deleted %d times, want exactly once", got)
	}
}

func TestSingleMemberGroupExecutesImmediately(t *testing.T) {
	f := newQuorumFixture(t, 1)
	ctx := context.Background()
	f.seedTasks(t, "t1")

	req, err := f.coord.CreateRequest(ctx, "g1", []string{"t1"}, "alice")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if req.RequiredApprovals != 1 {
		t.Fatalf("required approvals = %d, want 1", req.RequiredApprovals)
	}

	if _, _, err := f.coord.RecordApproval(ctx, req.ID, "alice"); err != nil {
		t.Fatalf("approval failed: %v", err)
	}
	if _, _, err := f.tasks.Get(ctx, "t1"); !errors.Is(err, errors.CodeNotFound) {
		t.Errorf("task should be deleted, got %v", err)
	}
}

func TestExpiredRequestRejectsApproval(t *testing.T) {
	f := newQuorumFixture(t, 5)
	ctx := context.Background()

	req, err := f.coord.CreateRequest(ctx, "g1", []string{"t1"}, "alice")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	f.clk.Advance(DefaultTTL + time.Hour)

	if _, _, err := f.coord.RecordApproval(ctx, req.ID, "bob"); !errors.Is(err, errors.CodeRequestExpired) {
		t.Fatalf("expected REQUEST_EXPIRED, got %v", err)
	}

	// The stale request no longer blocks a fresh one.
	if _, err := f.coord.CreateRequest(ctx, "g1", []string{"t1"}, "bob"); err != nil {
		t.Fatalf("new request after expiry failed: %v", err)
	}
}

func TestExpiryClearsPendingLookup(t *testing.T) {
	f := newQuorumFixture(t, 5)
	ctx := context.Background()

	if _, err := f.coord.CreateRequest(ctx, "g1", []string{"t1"}, "alice"); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if _, err := f.coord.PendingForGroup(ctx, "g1"); err != nil {
		t.Fatalf("PendingForGroup before expiry: %v", err)
	}

	f.clk.Advance(DefaultTTL + time.Minute)

	if _, err := f.coord.PendingForGroup(ctx, "g1"); !errors.Is(err, errors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND after expiry, got %v", err)
	}
}

func TestCancelRequest(t *testing.T) {
	f := newQuorumFixture(t, 5)
	ctx := context.Background()
	f.seedTasks(t, "t1")

	req, err := f.coord.CreateRequest(ctx, "g1", []string{"t1"}, "alice")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if err := f.coord.CancelRequest(ctx, req.ID, "alice"); err != nil {
		t.Fatalf("CancelRequest failed: %v", err)
	}

	// Cancelled requests take no further votes and the tasks remain.
	if _, _, err := f.coord.RecordApproval(ctx, req.ID, "bob"); !errors.Is(err, errors.CodeRequestExpired) {
		t.Errorf("approval after cancel: expected REQUEST_EXPIRED, got %v", err)
	}
	if _, _, err := f.tasks.Get(ctx, "t1"); err != nil {
		t.Errorf("task should survive a cancelled request: %v", err)
	}
	if err := f.coord.CancelRequest(ctx, req.ID, "alice"); !errors.Is(err, errors.CodeInvalidInput) {
		t.Errorf("double cancel: expected INVALID_INPUT, got %v", err)
	}
}
