package store

import (
	"errors"
	"sync"
	"testing"
)

func TestMemoryPutGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	rev, err := s.Put("task.t1", []byte("hello"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if rev == 0 {
		t.Fatal("expected non-zero revision")
	}

	got, err := s.Get("task.t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Get = %q, want hello", got)
	}

	entry, err := s.GetEntry("task.t1")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if entry.Revision != rev {
		t.Errorf("revision = %d, want %d", entry.Revision, rev)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryPutRevisionCreate(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	// Expected 0 means create-only.
	if _, err := s.PutRevision("k", []byte("v1"), 0); err != nil {
		t.Fatalf("create with expected=0 failed: %v", err)
	}
	if _, err := s.PutRevision("k", []byte("v2"), 0); !errors.Is(err, ErrRevisionMismatch) {
		t.Errorf("second create should mismatch, got %v", err)
	}
}

func TestMemoryPutRevisionCAS(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	rev1, _ := s.Put("k", []byte("v1"))

	rev2, err := s.PutRevision("k", []byte("v2"), rev1)
	if err != nil {
		t.Fatalf("CAS with correct revision failed: %v", err)
	}
	if rev2 <= rev1 {
		t.Errorf("revision should increase: %d -> %d", rev1, rev2)
	}

	// Stale writer loses.
	if _, err := s.PutRevision("k", []byte("v3"), rev1); !errors.Is(err, ErrRevisionMismatch) {
		t.Errorf("stale CAS should fail, got %v", err)
	}

	got, _ := s.Get("k")
	if string(got) != "v2" {
		t.Errorf("losing write must not mutate: got %q", got)
	}
}

func TestMemoryCASRace(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	rev, _ := s.Put("counter", []byte("0"))

	// Many writers race on the same revision; exactly one may win.
	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.PutRevision("counter", []byte("1"), rev); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("exactly one CAS should win, got %d", wins)
	}
}

func TestMemoryKeysPrefix(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	s.Put("task.a", []byte("1"))
	s.Put("task.b", []byte("2"))
	s.Put("template.a", []byte("3"))

	keys, err := s.Keys("task.")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 task keys, got %v", keys)
	}
}

func TestMemoryDeleteIdempotent(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	s.Put("k", []byte("v"))
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete("k"); err != nil {
		t.Errorf("deleting a missing key should be a no-op, got %v", err)
	}
	if _, err := s.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryClose(t *testing.T) {
	s := NewMemoryStore()
	s.Close()

	if _, err := s.Put("k", []byte("v")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := s.Get("k"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
