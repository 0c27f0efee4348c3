package kpi

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/store"
)

const keyPrefix = "kpi."

// Repository is the persistence boundary for scoring records. Records
// are append-only; the (task, type, user) key makes re-scoring the
// same event a no-op.
type Repository interface {
	// RecordIfAbsent writes the record unless one already exists for
	// the same (task, type, user). Returns false when the record was
	// already present.
	RecordIfAbsent(ctx context.Context, rec *Record) (bool, error)

	// Aggregate sums points per user for one group over a window and
	// returns rows in leaderboard order.
	Aggregate(ctx context.Context, groupID string, w Window) ([]UserScore, error)

	// RecentByUser returns the user's most recent records, newest
	// first, capped at n when n is positive. Streak evaluation reads
	// these.
	RecentByUser(ctx context.Context, userID string, n int) ([]*Record, error)
}

// StoreRepository implements Repository over a store.Store.
type StoreRepository struct {
	store store.Store
}

// NewStoreRepository creates a scoring repository on the given store.
func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s}
}

func recordKey(rec *Record) string {
	return keyPrefix + rec.TaskID + "." + string(rec.Type) + "." + rec.UserID
}

// RecordIfAbsent writes the record with a create-only put. A revision
// mismatch means some earlier write already scored this event.
func (r *StoreRepository) RecordIfAbsent(ctx context.Context, rec *Record) (bool, error) {
	if rec == nil || rec.UserID == "" || rec.Type == "" {
		return false, errors.New(errors.CodeInvalidInput, "record needs a user and a type")
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return false, errors.WrapWithCode(err, errors.CodeInternal, "encode kpi record")
	}

	if _, err := r.store.PutRevision(recordKey(rec), encoded, 0); err != nil {
		if err == store.ErrRevisionMismatch {
			return false, nil
		}
		return false, errors.WrapWithCode(err, errors.CodeUnavailable, "write kpi record")
	}
	return true, nil
}

// Aggregate sums points per user over the window.
func (r *StoreRepository) Aggregate(ctx context.Context, groupID string, w Window) ([]UserScore, error) {
	records, err := r.scan(func(rec *Record) bool {
		return rec.GroupID == groupID && w.Contains(rec.OccurredAt)
	})
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]*UserScore)
	for _, rec := range records {
		score, ok := byUser[rec.UserID]
		if !ok {
			score = &UserScore{UserID: rec.UserID}
			byUser[rec.UserID] = score
		}
		score.Points += rec.Points
		if rec.countsAsCompletion() {
			score.Completed++
		}
		if rec.OccurredAt.After(score.AchievedAt) {
			score.AchievedAt = rec.OccurredAt
		}
	}

	rows := make([]UserScore, 0, len(byUser))
	for _, score := range byUser {
		rows = append(rows, *score)
	}
	sortLeaderboard(rows)
	return rows, nil
}

// sortLeaderboard orders rows by points, then completion count, then
// who reached their score first, then user id for a stable total order.
func sortLeaderboard(rows []UserScore) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Completed != b.Completed {
			return a.Completed > b.Completed
		}
		if !a.AchievedAt.Equal(b.AchievedAt) {
			return a.AchievedAt.Before(b.AchievedAt)
		}
		return a.UserID < b.UserID
	})
}

// RecentByUser returns the user's latest records, newest first.
func (r *StoreRepository) RecentByUser(ctx context.Context, userID string, n int) ([]*Record, error) {
	records, err := r.scan(func(rec *Record) bool {
		return rec.UserID == userID
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].OccurredAt.After(records[j].OccurredAt)
	})
	if n > 0 && len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// scan reads all records and keeps those matching the filter.
func (r *StoreRepository) scan(keep func(*Record) bool) ([]*Record, error) {
	keys, err := r.store.Keys(keyPrefix)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "list kpi records")
	}

	var records []*Record
	for _, key := range keys {
		value, err := r.store.Get(key)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "read kpi record")
		}
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeCorruption, "decode kpi record "+key)
		}
		if keep(&rec) {
			records = append(records, &rec)
		}
	}
	return records, nil
}
