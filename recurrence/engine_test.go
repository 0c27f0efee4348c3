package recurrence

import (
	"context"
	"testing"
	"time"

	"github.com/vinayprograms/groupkit/bus"
	"github.com/vinayprograms/groupkit/clock"
	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/store"
	"github.com/vinayprograms/groupkit/task"
)

var engineStart = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type engineFixture struct {
	engine    *Engine
	templates *StoreTemplateRepository
	tasks     *task.StoreRepository
	clock     *clock.Fake
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	b := bus.NewMemoryBus(bus.DefaultConfig())
	t.Cleanup(func() { b.Close() })

	clk := clock.NewFake(engineStart)
	tasks := task.NewStoreRepository(s)
	machine := task.NewStateMachine(tasks, b, clk)
	templates := NewStoreTemplateRepository(s)

	return &engineFixture{
		engine:    NewEngine(templates, machine, clk),
		templates: templates,
		tasks:     tasks,
		clock:     clk,
	}
}

func (f *engineFixture) createDaily(t *testing.T) *Template {
	t.Helper()
	tmpl, err := f.engine.CreateTemplate(context.Background(), &Template{
		GroupID:        "grp-1",
		Title:          "daily standup notes",
		Kind:           KindDaily,
		InitialDueTime: engineStart.Add(time.Hour), // 09:00
		CreatedBy:      "alice",
		Assignees:      []string{"bob"},
	})
	if err != nil {
		t.Fatalf("CreateTemplate failed: %v", err)
	}
	return tmpl
}

func TestTickGeneratesWhenDue(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	tmpl := f.createDaily(t)

	// Before the initial due time: nothing happens.
	n, err := f.engine.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("generated %d before due, want 0", n)
	}

	f.clock.Advance(2 * time.Hour) // past 09:00
	n, err = f.engine.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("generated %d, want 1", n)
	}

	instances, err := f.tasks.ListByTemplate(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("ListByTemplate failed: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("got %d instances, want 1", len(instances))
	}
	inst := instances[0]
	if inst.RecurringInstanceNumber != 1 {
		t.Errorf("instance number = %d, want 1", inst.RecurringInstanceNumber)
	}
	if inst.Title != "daily standup notes" || inst.GroupID != "grp-1" {
		t.Errorf("instance fields not copied: %+v", inst)
	}
	if !inst.DueTime.Equal(engineStart.Add(time.Hour)) {
		t.Errorf("instance due = %v", inst.DueTime)
	}

	got, _, _ := f.templates.Get(ctx, tmpl.ID)
	if got.TotalInstancesGenerated != 1 {
		t.Errorf("counter = %d, want 1", got.TotalInstancesGenerated)
	}
	if !got.LastGeneratedDueTime.Equal(inst.DueTime) {
		t.Errorf("cursor = %v, want %v", got.LastGeneratedDueTime, inst.DueTime)
	}
}

func TestTickIdempotentWithoutClockAdvance(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	tmpl := f.createDaily(t)

	f.clock.Advance(2 * time.Hour)
	f.engine.Tick(ctx)

	before, _, _ := f.templates.Get(ctx, tmpl.ID)
	for i := 0; i < 3; i++ {
		n, err := f.engine.Tick(ctx)
		if err != nil {
			t.Fatalf("Tick failed: %v", err)
		}
		if n != 0 {
			t.Fatalf("re-tick generated %d instances", n)
		}
	}
	after, _, _ := f.templates.Get(ctx, tmpl.ID)
	if after.TotalInstancesGenerated != before.TotalInstancesGenerated {
		t.Error("re-tick mutated the template counter")
	}
	if !after.LastGeneratedDueTime.Equal(before.LastGeneratedDueTime) {
		t.Error("re-tick moved the cursor")
	}
}

func TestNInstancesOverNPeriods(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	tmpl := f.createDaily(t)

	const periods = 5
	for i := 0; i < periods; i++ {
		f.clock.Advance(24 * time.Hour)
		if _, err := f.engine.Tick(ctx); err != nil {
			t.Fatalf("Tick %d failed: %v", i, err)
		}
	}

	got, _, _ := f.templates.Get(ctx, tmpl.ID)
	if got.TotalInstancesGenerated != periods {
		t.Errorf("counter = %d, want %d", got.TotalInstancesGenerated, periods)
	}
	instances, _ := f.tasks.ListByTemplate(ctx, tmpl.ID)
	if len(instances) != periods {
		t.Errorf("got %d instances, want %d", len(instances), periods)
	}
}

func TestDowntimeGeneratesSingleCatchUp(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	tmpl := f.createDaily(t)

	// Scheduler "down" for 10 periods.
	f.clock.Advance(10*24*time.Hour + 2*time.Hour)
	n, err := f.engine.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("catch-up generated %d instances, want exactly 1", n)
	}

	instances, _ := f.tasks.ListByTemplate(ctx, tmpl.ID)
	if len(instances) != 1 {
		t.Fatalf("got %d instances, want 1", len(instances))
	}
	// The one instance is for the most recent missed due point.
	wantDue := engineStart.Add(time.Hour).Add(10 * 24 * time.Hour)
	if !instances[0].DueTime.Equal(wantDue) {
		t.Errorf("catch-up due = %v, want %v", instances[0].DueTime, wantDue)
	}

	// Generation resumes one-per-period afterwards.
	f.clock.Advance(24 * time.Hour)
	n, _ = f.engine.Tick(ctx)
	if n != 1 {
		t.Errorf("post-catch-up tick generated %d, want 1", n)
	}
}

func TestInactiveTemplateSkipped(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	tmpl := f.createDaily(t)

	if err := f.engine.Deactivate(ctx, tmpl.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	f.clock.Advance(48 * time.Hour)
	n, err := f.engine.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if n != 0 {
		t.Errorf("inactive template generated %d instances", n)
	}
}

// failingTaskRepo refuses writes, simulating a repository outage during
// instance creation.
type failingTaskRepo struct {
	task.Repository
}

func (f *failingTaskRepo) Save(ctx context.Context, t *task.Task, expectedVersion uint64) (uint64, error) {
	return 0, errors.Unavailable("store is down")
}

func TestCreationFailureLeavesCursor(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	clk := clock.NewFake(engineStart)
	failing := &failingTaskRepo{Repository: task.NewStoreRepository(s)}
	machine := task.NewStateMachine(failing, b, clk)
	templates := NewStoreTemplateRepository(s)
	engine := NewEngine(templates, machine, clk)

	ctx := context.Background()
	tmpl, err := engine.CreateTemplate(ctx, &Template{
		GroupID:        "grp-1",
		Title:          "weekly digest",
		Kind:           KindDaily,
		InitialDueTime: engineStart.Add(time.Hour),
		CreatedBy:      "alice",
	})
	if err != nil {
		t.Fatalf("CreateTemplate failed: %v", err)
	}

	clk.Advance(2 * time.Hour)
	n, err := engine.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("failed creation counted as generated")
	}

	got, _, _ := templates.Get(ctx, tmpl.ID)
	if got.TotalInstancesGenerated != 0 || !got.LastGeneratedDueTime.IsZero() {
		t.Error("failed creation must not advance the cursor")
	}

	// Same instance is retried once the repository recovers.
	healthy := NewEngine(templates, task.NewStateMachine(task.NewStoreRepository(s), b, clk), clk)
	n, err = healthy.Tick(ctx)
	if err != nil {
		t.Fatalf("recovery Tick failed: %v", err)
	}
	if n != 1 {
		t.Errorf("recovery generated %d, want 1", n)
	}
}

// flakyTemplateRepo fails a configured number of Save calls, simulating
// a cursor write lost after the instance was already created.
type flakyTemplateRepo struct {
	TemplateRepository
	failures int
}

func (r *flakyTemplateRepo) Save(ctx context.Context, t *Template, expectedVersion uint64) (uint64, error) {
	if r.failures > 0 {
		r.failures--
		return 0, errors.Unavailable("store is down")
	}
	return r.TemplateRepository.Save(ctx, t, expectedVersion)
}

func TestLostCursorWriteDoesNotDuplicateInstance(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	clk := clock.NewFake(engineStart)
	tasks := task.NewStoreRepository(s)
	machine := task.NewStateMachine(tasks, b, clk)
	templates := &flakyTemplateRepo{TemplateRepository: NewStoreTemplateRepository(s)}
	engine := NewEngine(templates, machine, clk)

	ctx := context.Background()
	tmpl, err := engine.CreateTemplate(ctx, &Template{
		GroupID:        "grp-1",
		Title:          "trash day reminder",
		Kind:           KindDaily,
		InitialDueTime: engineStart.Add(time.Hour),
		CreatedBy:      "alice",
	})
	if err != nil {
		t.Fatalf("CreateTemplate failed: %v", err)
	}

	// The instance is created but the cursor write fails.
	templates.failures = 1
	clk.Advance(2 * time.Hour)
	if n, err := engine.Tick(ctx); err != nil || n != 0 {
		t.Fatalf("Tick with lost cursor write: n = %d, err = %v", n, err)
	}

	got, _, _ := templates.Get(ctx, tmpl.ID)
	if got.TotalInstancesGenerated != 0 {
		t.Fatalf("counter = %d after lost write, want 0", got.TotalInstancesGenerated)
	}

	// The next tick must not create a second task for the same due
	// point; it only catches the cursor up.
	if n, err := engine.Tick(ctx); err != nil || n != 0 {
		t.Fatalf("recovery Tick: n = %d, err = %v", n, err)
	}

	instances, err := tasks.ListByTemplate(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("ListByTemplate failed: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("got %d instances for one due point, want 1", len(instances))
	}

	got, _, _ = templates.Get(ctx, tmpl.ID)
	if got.TotalInstancesGenerated != 1 || !got.LastGeneratedDueTime.Equal(engineStart.Add(time.Hour)) {
		t.Errorf("cursor after recovery = (%d, %v), want (1, %v)",
			got.TotalInstancesGenerated, got.LastGeneratedDueTime, engineStart.Add(time.Hour))
	}

	// Further ticks at the same instant stay quiet.
	if n, err := engine.Tick(ctx); err != nil || n != 0 {
		t.Errorf("settled Tick: n = %d, err = %v", n, err)
	}
}

func TestInstanceIDIsStable(t *testing.T) {
	if instanceID("tpl-1", 1) != instanceID("tpl-1", 1) {
		t.Error("same template and number must map to the same id")
	}
	if instanceID("tpl-1", 1) == instanceID("tpl-1", 2) {
		t.Error("different instance numbers must map to different ids")
	}
	if instanceID("tpl-1", 1) == instanceID("tpl-2", 1) {
		t.Error("different templates must map to different ids")
	}
}

func TestCreateTemplateValidation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	cases := []*Template{
		{GroupID: "g", Kind: KindDaily, InitialDueTime: engineStart},                                       // no title
		{Title: "t", Kind: KindDaily, InitialDueTime: engineStart},                                         // no group
		{Title: "t", GroupID: "g", Kind: KindDaily},                                                        // no due time
		{Title: "t", GroupID: "g", Kind: Kind("hourly"), InitialDueTime: engineStart},                      // bad kind
		{Title: "t", GroupID: "g", Kind: KindDaily, InitialDueTime: engineStart, Timezone: "Mars/Olympus"}, // bad tz
	}
	for i, tmpl := range cases {
		if _, err := f.engine.CreateTemplate(ctx, tmpl); !errors.Is(err, errors.CodeInvalidInput) {
			t.Errorf("case %d: expected INVALID_INPUT, got %v", i, err)
		}
	}
}
