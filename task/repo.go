package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/store"
)

const keyPrefix = "task."

// Repository is the persistence boundary for tasks. Save takes the
// version returned by the last read; a stale version yields a CONFLICT
// error and the caller must re-read and retry.
type Repository interface {
	// Get retrieves a task and its current version.
	Get(ctx context.Context, id string) (*Task, uint64, error)

	// Save persists a task. An expectedVersion of zero creates the
	// task; otherwise it must match the version from Get.
	// Returns the new version.
	Save(ctx context.Context, t *Task, expectedVersion uint64) (uint64, error)

	// ListDueForOverdueCheck returns open tasks whose due time is
	// before the given instant.
	ListDueForOverdueCheck(ctx context.Context, before time.Time) ([]*Task, error)

	// ListDueForPenaltyCheck returns unfinished tasks due before the
	// given instant that have not had their overdue penalty flagged.
	ListDueForPenaltyCheck(ctx context.Context, before time.Time) ([]*Task, error)

	// ListByTemplate returns the instances generated from a template.
	ListByTemplate(ctx context.Context, templateID string) ([]*Task, error)

	// Delete removes a task. Only the quorum coordinator calls this,
	// after an executed deletion request.
	Delete(ctx context.Context, id string) error
}

// StoreRepository implements Repository over a store.Store.
type StoreRepository struct {
	store store.Store
}

// NewStoreRepository creates a task repository on the given store.
func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s}
}

// Get retrieves a task and its current version.
func (r *StoreRepository) Get(ctx context.Context, id string) (*Task, uint64, error) {
	if id == "" {
		return nil, 0, errors.New(errors.CodeInvalidInput, "task id is empty")
	}

	entry, err := r.store.GetEntry(keyPrefix + id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, 0, errors.NotFound("task "+id+" not found", errors.WithTaskID(id))
		}
		return nil, 0, errors.WrapWithCode(err, errors.CodeUnavailable, "read task", errors.WithTaskID(id))
	}

	var t Task
	if err := json.Unmarshal(entry.Value, &t); err != nil {
		return nil, 0, errors.WrapWithCode(err, errors.CodeCorruption, "decode task", errors.WithTaskID(id))
	}
	return &t, entry.Revision, nil
}

// Save persists a task under optimistic concurrency.
func (r *StoreRepository) Save(ctx context.Context, t *Task, expectedVersion uint64) (uint64, error) {
	if t == nil || t.ID == "" {
		return 0, errors.New(errors.CodeInvalidInput, "task has no id")
	}

	encoded, err := json.Marshal(t)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeInternal, "encode task", errors.WithTaskID(t.ID))
	}

	version, err := r.store.PutRevision(keyPrefix+t.ID, encoded, expectedVersion)
	if err != nil {
		if err == store.ErrRevisionMismatch {
			return 0, errors.Conflict("task was modified concurrently", errors.WithTaskID(t.ID))
		}
		return 0, errors.WrapWithCode(err, errors.CodeUnavailable, "write task", errors.WithTaskID(t.ID))
	}
	return version, nil
}

// ListDueForOverdueCheck returns open tasks due before the given instant.
func (r *StoreRepository) ListDueForOverdueCheck(ctx context.Context, before time.Time) ([]*Task, error) {
	return r.list(func(t *Task) bool {
		return t.Status.IsOpen() && t.DueTime.Before(before)
	})
}

// ListDueForPenaltyCheck returns unfinished tasks due before the given
// instant whose penalty has not been flagged yet.
func (r *StoreRepository) ListDueForPenaltyCheck(ctx context.Context, before time.Time) ([]*Task, error) {
	return r.list(func(t *Task) bool {
		return t.Status.IsUnfinished() && t.OverduePenaltyAt == nil && t.DueTime.Before(before)
	})
}

// ListByTemplate returns instances generated from a template.
func (r *StoreRepository) ListByTemplate(ctx context.Context, templateID string) ([]*Task, error) {
	return r.list(func(t *Task) bool {
		return t.RecurringTemplateID == templateID
	})
}

// list scans all tasks and keeps those matching the filter.
func (r *StoreRepository) list(keep func(*Task) bool) ([]*Task, error) {
	keys, err := r.store.Keys(keyPrefix)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "list tasks")
	}

	var tasks []*Task
	for _, key := range keys {
		value, err := r.store.Get(key)
		if err != nil {
			if err == store.ErrNotFound {
				continue // deleted between scan and read
			}
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "read task")
		}
		var t Task
		if err := json.Unmarshal(value, &t); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeCorruption, "decode task "+key)
		}
		if keep(&t) {
			tasks = append(tasks, &t)
		}
	}
	return tasks, nil
}

// Delete removes a task.
func (r *StoreRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(keyPrefix + id); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "delete task", errors.WithTaskID(id))
	}
	return nil
}
