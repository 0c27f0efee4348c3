package store

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore implements Store with an in-process map.
// Useful for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string]*memEntry
	revision uint64
	closed   atomic.Bool
}

type memEntry struct {
	value    []byte
	revision uint64
	created  time.Time
	modified time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*memEntry),
	}
}

// Get retrieves a value by key.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	entry, err := s.GetEntry(key)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// GetEntry retrieves the full entry including revision metadata.
func (s *MemoryStore) GetEntry(key string) (*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}

	value := make([]byte, len(e.value))
	copy(value, e.value)

	return &Entry{
		Key:      key,
		Value:    value,
		Revision: e.revision,
		Created:  e.created,
		Modified: e.modified,
	}, nil
}

// Put stores a value unconditionally.
func (s *MemoryStore) Put(key string, value []byte) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(key, value), nil
}

// PutRevision stores a value only if the current revision matches.
func (s *MemoryStore) PutRevision(key string, value []byte, expected uint64) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		if expected != 0 {
			return 0, ErrRevisionMismatch
		}
	} else if e.revision != expected {
		return 0, ErrRevisionMismatch
	}

	return s.write(key, value), nil
}

// write stores the value and bumps the revision. Caller holds the lock.
func (s *MemoryStore) write(key string, value []byte) uint64 {
	s.revision++
	now := time.Now()

	stored := make([]byte, len(value))
	copy(stored, value)

	if e, ok := s.data[key]; ok {
		e.value = stored
		e.revision = s.revision
		e.modified = now
	} else {
		s.data[key] = &memEntry{
			value:    stored,
			revision: s.revision,
			created:  now,
			modified: now,
		}
	}
	return s.revision
}

// Delete removes a key.
func (s *MemoryStore) Delete(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys returns all keys with the given prefix.
func (s *MemoryStore) Keys(prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close marks the store closed. Further operations return ErrClosed.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}
