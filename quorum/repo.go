package quorum

import (
	"context"
	"encoding/json"

	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/store"
)

const keyPrefix = "deletion."

// RequestRepository is the persistence boundary for deletion requests.
// The request row is the unit of locking: approval recording runs as a
// read-modify-write on the version from Get.
type RequestRepository interface {
	// Get retrieves a request and its current version.
	Get(ctx context.Context, id string) (*Request, uint64, error)

	// PendingForGroup returns the group's pending request, or a
	// NOT_FOUND error when there is none.
	PendingForGroup(ctx context.Context, groupID string) (*Request, uint64, error)

	// Save persists a request. An expectedVersion of zero creates it.
	Save(ctx context.Context, r *Request, expectedVersion uint64) (uint64, error)
}

// StoreRequestRepository implements RequestRepository over a store.Store.
type StoreRequestRepository struct {
	store store.Store
}

// NewStoreRequestRepository creates a request repository on the given store.
func NewStoreRequestRepository(s store.Store) *StoreRequestRepository {
	return &StoreRequestRepository{store: s}
}

// Get retrieves a request and its current version.
func (r *StoreRequestRepository) Get(ctx context.Context, id string) (*Request, uint64, error) {
	if id == "" {
		return nil, 0, errors.New(errors.CodeInvalidInput, "request id is empty")
	}

	entry, err := r.store.GetEntry(keyPrefix + id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, 0, errors.NotFound("deletion request " + id + " not found")
		}
		return nil, 0, errors.WrapWithCode(err, errors.CodeUnavailable, "read deletion request")
	}

	var req Request
	if err := json.Unmarshal(entry.Value, &req); err != nil {
		return nil, 0, errors.WrapWithCode(err, errors.CodeCorruption, "decode deletion request "+id)
	}
	return &req, entry.Revision, nil
}

// PendingForGroup returns the group's pending request.
func (r *StoreRequestRepository) PendingForGroup(ctx context.Context, groupID string) (*Request, uint64, error) {
	keys, err := r.store.Keys(keyPrefix)
	if err != nil {
		return nil, 0, errors.WrapWithCode(err, errors.CodeUnavailable, "list deletion requests")
	}

	for _, key := range keys {
		entry, err := r.store.GetEntry(key)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, 0, errors.WrapWithCode(err, errors.CodeUnavailable, "read deletion request")
		}
		var req Request
		if err := json.Unmarshal(entry.Value, &req); err != nil {
			return nil, 0, errors.WrapWithCode(err, errors.CodeCorruption, "decode deletion request "+key)
		}
		if req.GroupID == groupID && req.Status == StatusPending {
			return &req, entry.Revision, nil
		}
	}
	return nil, 0, errors.NotFound("no pending deletion request for group " + groupID)
}

// Save persists a request under optimistic concurrency.
func (r *StoreRequestRepository) Save(ctx context.Context, req *Request, expectedVersion uint64) (uint64, error) {
	if req == nil || req.ID == "" {
		return 0, errors.New(errors.CodeInvalidInput, "deletion request has no id")
	}

	encoded, err := json.Marshal(req)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeInternal, "encode deletion request")
	}

	version, err := r.store.PutRevision(keyPrefix+req.ID, encoded, expectedVersion)
	if err != nil {
		if err == store.ErrRevisionMismatch {
			return 0, errors.Conflict("deletion request was modified concurrently")
		}
		return 0, errors.WrapWithCode(err, errors.CodeUnavailable, "write deletion request")
	}
	return version, nil
}
