// Package testutil provides helpers shared by the package tests: temporary
// databases, status recording and a silent logger.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"testing"

	"github.com/roach88/peersync/internal/store"
)

// TempStore opens a new database named name in a per-test temporary
// directory and writes docs (ID to body) into it in ID order. The store is
// closed when the test ends.
func TempStore(t testing.TB, name string, docs map[string]string) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := s.Put(context.Background(), id, []byte(docs[id])); err != nil {
			t.Fatalf("Put(%q) failed: %v", id, err)
		}
	}
	return s
}

// DocCount returns the number of live documents in s.
func DocCount(t testing.TB, s *store.Store) int {
	t.Helper()
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	return n
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
