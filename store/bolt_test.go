package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestBolt(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "groupkit.db"))
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltPutGetRoundTrip(t *testing.T) {
	s := openTestBolt(t)

	rev, err := s.Put("task.t1", []byte(`{"title":"write report"}`))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, err := s.GetEntry("task.t1")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if string(entry.Value) != `{"title":"write report"}` {
		t.Errorf("value = %q", entry.Value)
	}
	if entry.Revision != rev {
		t.Errorf("revision = %d, want %d", entry.Revision, rev)
	}
}

func TestBoltCAS(t *testing.T) {
	s := openTestBolt(t)

	rev1, _ := s.Put("k", []byte("v1"))

	if _, err := s.PutRevision("k", []byte("v2"), rev1); err != nil {
		t.Fatalf("CAS with matching revision failed: %v", err)
	}
	if _, err := s.PutRevision("k", []byte("v3"), rev1); !errors.Is(err, ErrRevisionMismatch) {
		t.Errorf("stale CAS should fail with ErrRevisionMismatch, got %v", err)
	}

	got, _ := s.Get("k")
	if string(got) != "v2" {
		t.Errorf("losing write must not mutate: got %q", got)
	}
}

func TestBoltCreateOnly(t *testing.T) {
	s := openTestBolt(t)

	if _, err := s.PutRevision("fresh", []byte("a"), 0); err != nil {
		t.Fatalf("create-only write failed: %v", err)
	}
	if _, err := s.PutRevision("fresh", []byte("b"), 0); !errors.Is(err, ErrRevisionMismatch) {
		t.Errorf("duplicate create should fail, got %v", err)
	}
}

func TestBoltKeysPrefix(t *testing.T) {
	s := openTestBolt(t)

	s.Put("kpi.rec.1", []byte("a"))
	s.Put("kpi.rec.2", []byte("b"))
	s.Put("task.1", []byte("c"))

	keys, err := s.Keys("kpi.rec.")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %v", keys)
	}
}

func TestBoltMissingKey(t *testing.T) {
	s := openTestBolt(t)

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete("missing"); err != nil {
		t.Errorf("deleting a missing key should be a no-op, got %v", err)
	}
}
