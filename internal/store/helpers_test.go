package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/deferring/internal/relation"
)

// createTestStore creates a new temp-dir store for testing with sequential
// record keys.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithKeyGenerator(NewSequenceGenerator("test")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestRecord inserts a named record of kind.
func insertTestRecord(t *testing.T, s *Store, kind, name string) *Record {
	t.Helper()
	r := &Record{Kind: kind, Name: name}
	if err := s.InsertRecord(context.Background(), r); err != nil {
		t.Fatalf("InsertRecord(%s %s) failed: %v", kind, name, err)
	}
	return r
}

func recordIDs(rs []*Record) []relation.ID {
	ids := make([]relation.ID, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}
