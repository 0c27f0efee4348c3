package store

import (
	"errors"
	"time"
)

// Common errors.
var (
	ErrNotFound         = errors.New("key not found")
	ErrClosed           = errors.New("store closed")
	ErrInvalidKey       = errors.New("invalid key")
	ErrRevisionMismatch = errors.New("revision mismatch")
)

// Entry is a stored value with revision metadata.
type Entry struct {
	// Key is the entry key.
	Key string

	// Value is the entry value.
	Value []byte

	// Revision is a monotonic version number, unique per write.
	Revision uint64

	// Created is when the key was first created.
	Created time.Time

	// Modified is when the key was last modified.
	Modified time.Time
}

// Store provides versioned key-value storage. The revision returned by
// writes is the optimistic-concurrency token the repositories use: a
// writer that read revision R calls PutRevision with R and loses with
// ErrRevisionMismatch if another writer got there first.
type Store interface {
	// Get retrieves a value by key.
	// Returns ErrNotFound if the key does not exist.
	Get(key string) ([]byte, error)

	// GetEntry retrieves the full Entry including its revision.
	// Returns ErrNotFound if the key does not exist.
	GetEntry(key string) (*Entry, error)

	// Put stores a value unconditionally and returns the new revision.
	Put(key string, value []byte) (uint64, error)

	// PutRevision stores a value only if the key's current revision
	// equals expected. An expected revision of zero means the key must
	// not exist yet. Returns ErrRevisionMismatch on a lost race.
	PutRevision(key string, value []byte, expected uint64) (uint64, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key string) error

	// Keys returns all keys with the given prefix, in unspecified order.
	Keys(prefix string) ([]string, error)

	// Close shuts down the store and releases resources.
	Close() error
}

// ValidateKey rejects empty keys.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
