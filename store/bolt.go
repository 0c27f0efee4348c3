package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("groupkit")

// BoltStore implements Store on a single-file bbolt database.
// Writes run inside bbolt transactions, so PutRevision is atomic
// without any additional locking.
type BoltStore struct {
	db     *bolt.DB
	closed atomic.Bool
}

// boltEntry is the on-disk encoding of an entry.
type boltEntry struct {
	Value    []byte    `json:"value"`
	Revision uint64    `json:"revision"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// OpenBolt opens (creating if necessary) a bolt-backed store at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Get retrieves a value by key.
func (s *BoltStore) Get(key string) ([]byte, error) {
	entry, err := s.GetEntry(key)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// GetEntry retrieves the full entry including revision metadata.
func (s *BoltStore) GetEntry(key string) (*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	var entry *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		var be boltEntry
		if err := json.Unmarshal(raw, &be); err != nil {
			return fmt.Errorf("decode entry %q: %w", key, err)
		}
		entry = &Entry{
			Key:      key,
			Value:    be.Value,
			Revision: be.Revision,
			Created:  be.Created,
			Modified: be.Modified,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Put stores a value unconditionally.
func (s *BoltStore) Put(key string, value []byte) (uint64, error) {
	return s.putIf(key, value, nil)
}

// PutRevision stores a value only if the current revision matches.
func (s *BoltStore) PutRevision(key string, value []byte, expected uint64) (uint64, error) {
	return s.putIf(key, value, &expected)
}

// putIf writes the key inside one transaction, optionally checking the
// stored revision first.
func (s *BoltStore) putIf(key string, value []byte, expected *uint64) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return 0, err
	}

	var revision uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)

		var current boltEntry
		raw := bucket.Get([]byte(key))
		exists := raw != nil
		if exists {
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("decode entry %q: %w", key, err)
			}
		}

		if expected != nil {
			if !exists && *expected != 0 {
				return ErrRevisionMismatch
			}
			if exists && current.Revision != *expected {
				return ErrRevisionMismatch
			}
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}

		now := time.Now()
		next := boltEntry{
			Value:    value,
			Revision: seq,
			Created:  now,
			Modified: now,
		}
		if exists {
			next.Created = current.Created
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}
		revision = seq
		return bucket.Put([]byte(key), encoded)
	})
	if err != nil {
		return 0, err
	}
	return revision, nil
}

// Delete removes a key.
func (s *BoltStore) Delete(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
}

// Keys returns all keys with the given prefix.
func (s *BoltStore) Keys(prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
