package recurrence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/groupkit/clock"
	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/logging"
	"github.com/vinayprograms/groupkit/task"
)

// Engine materializes task instances from active recurring templates.
// Each scheduler tick calls Tick; templates are processed independently
// and a failure on one never blocks the others.
type Engine struct {
	templates TemplateRepository
	machine   *task.StateMachine
	clock     clock.Clock
	log       *logging.Logger
	idGen     func() string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log.WithComponent("recurrence")
	}
}

// WithIDGenerator sets a custom template ID generator.
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *Engine) {
		e.idGen = gen
	}
}

// NewEngine creates a recurrence engine. Instances are created through
// the task state machine so they get the same initial-status rules,
// history and events as user-created tasks.
func NewEngine(templates TemplateRepository, machine *task.StateMachine, clk clock.Clock, opts ...EngineOption) *Engine {
	e := &Engine{
		templates: templates,
		machine:   machine,
		clock:     clk,
		log:       logging.Nop(),
		idGen:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateTemplate validates and persists a new template.
func (e *Engine) CreateTemplate(ctx context.Context, t *Template) (*Template, error) {
	if t == nil || t.Title == "" {
		return nil, errors.New(errors.CodeInvalidInput, "template title is required")
	}
	if t.GroupID == "" {
		return nil, errors.New(errors.CodeInvalidInput, "template group is required")
	}
	if t.InitialDueTime.IsZero() {
		return nil, errors.New(errors.CodeInvalidInput, "template initial due time is required")
	}
	if _, err := t.Location(); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInvalidInput, "template timezone")
	}
	switch t.Kind {
	case KindDaily, KindWeekly, KindMonthly, KindQuarterly, KindCustom:
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "unknown recurrence kind %q", t.Kind)
	}

	t = t.Clone()
	if t.ID == "" {
		t.ID = e.idGen()
	}
	t.IsActive = true
	t.TotalInstancesGenerated = 0
	t.LastGeneratedDueTime = time.Time{}

	if _, err := e.templates.Save(ctx, t, 0); err != nil {
		return nil, err
	}
	return t, nil
}

// Deactivate stops generation for a template. Templates are never
// deleted; history and back-references from generated tasks stay valid.
func (e *Engine) Deactivate(ctx context.Context, id string) error {
	t, version, err := e.templates.Get(ctx, id)
	if err != nil {
		return err
	}
	if !t.IsActive {
		return nil
	}
	t.IsActive = false
	_, err = e.templates.Save(ctx, t, version)
	return err
}

// Tick evaluates every active template once and returns how many
// instances were generated. Per-template failures are logged and
// skipped; only a failure to list templates aborts the tick.
func (e *Engine) Tick(ctx context.Context) (int, error) {
	active, err := e.templates.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	generated := 0
	for _, tmpl := range active {
		created, err := e.evaluate(ctx, tmpl.ID)
		if err != nil {
			e.log.Warn("template evaluation failed", map[string]interface{}{
				"template": tmpl.ID,
				"error":    err.Error(),
			})
			continue
		}
		if created {
			generated++
		}
	}
	return generated, nil
}

// evaluate re-reads one template and generates its next instance if one
// is due. The cursor only advances after the instance exists, so a
// failed creation is retried on the next tick without skipping. The
// instance ID is derived from the template and instance number: if a
// previous tick created the instance but lost its cursor write, or a
// second scheduler races on the same due point, the retry's create-only
// save conflicts and the cursor just catches up.
func (e *Engine) evaluate(ctx context.Context, templateID string) (bool, error) {
	tmpl, version, err := e.templates.Get(ctx, templateID)
	if err != nil {
		return false, err
	}
	if !tmpl.IsActive {
		return false, nil
	}

	now := e.clock.Now()
	due, ok, err := MostRecentDue(tmpl, now)
	if err != nil {
		return false, err
	}
	if !ok || due.Equal(tmpl.LastGeneratedDueTime) {
		return false, nil
	}

	instance := &task.Task{
		ID:                      instanceID(tmpl.ID, tmpl.TotalInstancesGenerated+1),
		GroupID:                 tmpl.GroupID,
		Title:                   tmpl.Title,
		Description:             tmpl.Description,
		Priority:                tmpl.Priority,
		CreatedBy:               tmpl.CreatedBy,
		Assignees:               tmpl.Assignees,
		Reviewer:                tmpl.Reviewer,
		DueTime:                 due,
		RecurringTemplateID:     tmpl.ID,
		RecurringInstanceNumber: tmpl.TotalInstancesGenerated + 1,
	}
	fresh := true
	created, err := e.machine.Create(ctx, instance)
	if err != nil {
		if !errors.Is(err, errors.CodeConflict) {
			return false, err
		}
		// The instance already exists from a tick whose cursor write
		// failed. Only the cursor needs to catch up.
		fresh = false
	}

	tmpl.LastGeneratedDueTime = due
	tmpl.TotalInstancesGenerated++
	if _, err := e.templates.Save(ctx, tmpl, version); err != nil {
		// The instance exists but the cursor write lost. Another
		// scheduler instance advanced the template, or the store
		// failed; either way the next tick re-evaluates.
		return false, err
	}

	if fresh {
		e.log.Info("generated instance", map[string]interface{}{
			"template": tmpl.ID,
			"task":     created.ID,
			"instance": tmpl.TotalInstancesGenerated,
			"due":      due,
		})
	}
	return fresh, nil
}

// instanceID derives a stable task ID for one (template, instance
// number) pair, making instance creation idempotent across retries.
func instanceID(templateID string, n int) string {
	name := fmt.Sprintf("%s/%d", templateID, n)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
