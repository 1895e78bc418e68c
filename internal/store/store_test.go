package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
	assert.Equal(t, path, s.Path())
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"documents", "checkpoints"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpenAgain_IndependentLifetime(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.Put(ctx, "doc1", []byte(`{"n":1}`))
	require.NoError(t, err)

	again, err := s.OpenAgain()
	require.NoError(t, err)
	assert.Equal(t, s.Path(), again.Path())

	// Closing the copy leaves the original usable, and vice versa.
	require.NoError(t, again.Close())
	doc, err := s.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(doc.Body))

	again, err = s.OpenAgain()
	require.NoError(t, err)
	defer again.Close()
	_, err = again.Put(ctx, "doc2", []byte(`{}`))
	require.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "writes through the copy are visible through the original")
}

func TestOpenAgain_NilStore(t *testing.T) {
	var s *Store
	_, err := s.OpenAgain()
	assert.Error(t, err)
}

func TestClose_Twice(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
