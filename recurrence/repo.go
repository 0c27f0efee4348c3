package recurrence

import (
	"context"
	"encoding/json"

	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/store"
)

const keyPrefix = "template."

// TemplateRepository is the persistence boundary for recurring
// templates. Save uses the version from Get; a stale version yields a
// CONFLICT error, which matters when two scheduler instances race on
// the same template.
type TemplateRepository interface {
	// Get retrieves a template and its current version.
	Get(ctx context.Context, id string) (*Template, uint64, error)

	// ListActive returns all templates with IsActive set.
	ListActive(ctx context.Context) ([]*Template, error)

	// Save persists a template. An expectedVersion of zero creates it.
	Save(ctx context.Context, t *Template, expectedVersion uint64) (uint64, error)
}

// StoreTemplateRepository implements TemplateRepository over a store.Store.
type StoreTemplateRepository struct {
	store store.Store
}

// NewStoreTemplateRepository creates a template repository on the given store.
func NewStoreTemplateRepository(s store.Store) *StoreTemplateRepository {
	return &StoreTemplateRepository{store: s}
}

// Get retrieves a template and its current version.
func (r *StoreTemplateRepository) Get(ctx context.Context, id string) (*Template, uint64, error) {
	if id == "" {
		return nil, 0, errors.New(errors.CodeInvalidInput, "template id is empty")
	}

	entry, err := r.store.GetEntry(keyPrefix + id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, 0, errors.NotFound("template " + id + " not found")
		}
		return nil, 0, errors.WrapWithCode(err, errors.CodeUnavailable, "read template")
	}

	var t Template
	if err := json.Unmarshal(entry.Value, &t); err != nil {
		return nil, 0, errors.WrapWithCode(err, errors.CodeCorruption, "decode template "+id)
	}
	return &t, entry.Revision, nil
}

// ListActive returns all active templates.
func (r *StoreTemplateRepository) ListActive(ctx context.Context) ([]*Template, error) {
	keys, err := r.store.Keys(keyPrefix)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "list templates")
	}

	var active []*Template
	for _, key := range keys {
		value, err := r.store.Get(key)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "read template")
		}
		var t Template
		if err := json.Unmarshal(value, &t); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeCorruption, "decode template "+key)
		}
		if t.IsActive {
			active = append(active, &t)
		}
	}
	return active, nil
}

// Save persists a template under optimistic concurrency.
func (r *StoreTemplateRepository) Save(ctx context.Context, t *Template, expectedVersion uint64) (uint64, error) {
	if t == nil || t.ID == "" {
		return 0, errors.New(errors.CodeInvalidInput, "template has no id")
	}

	encoded, err := json.Marshal(t)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeInternal, "encode template")
	}

	version, err := r.store.PutRevision(keyPrefix+t.ID, encoded, expectedVersion)
	if err != nil {
		if err == store.ErrRevisionMismatch {
			return 0, errors.Conflict("template was modified concurrently")
		}
		return 0, errors.WrapWithCode(err, errors.CodeUnavailable, "write template")
	}
	return version, nil
}
