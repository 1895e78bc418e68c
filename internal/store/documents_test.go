package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPut_AssignsIncreasingSequences(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	seq1, err := s.Put(ctx, "a", []byte("1"))
	require.NoError(t, err)
	seq2, err := s.Put(ctx, "b", []byte("2"))
	require.NoError(t, err)
	seq3, err := s.Put(ctx, "a", []byte("3"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), seq1)
	assert.Equal(t, int64(2), seq2)
	assert.Equal(t, int64(3), seq3)

	last, err := s.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestPut_IdenticalContentKeepsSequence(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	seq1, err := s.Put(ctx, "a", []byte("same"))
	require.NoError(t, err)
	seq2, err := s.Put(ctx, "a", []byte("same"))
	require.NoError(t, err)

	assert.Equal(t, seq1, seq2)
}

func TestPut_EmptyID(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Put(context.Background(), "", []byte("x"))
	assert.True(t, errors.Is(err, ErrInvalidDocID))
}

func TestPut_NormalizesDocID(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	// "é" as e + combining acute (NFD) and as a single code point (NFC).
	_, err := s.Put(ctx, "cafe\u0301", []byte("nfd"))
	require.NoError(t, err)

	doc, err := s.Get(ctx, "caf\u00e9")
	require.NoError(t, err)
	assert.Equal(t, "nfd", string(doc.Body))
	assert.Equal(t, "caf\u00e9", doc.ID)
}

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDelete_Tombstone(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.Put(ctx, "a", []byte("1"))
	require.NoError(t, err)
	seq, err := s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	doc, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, doc.Deleted)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChangesSince(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := s.Put(ctx, id, []byte(id))
		require.NoError(t, err)
	}

	all, err := s.ChangesSince(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "d", all[3].ID)

	page, err := s.ChangesSince(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, []int64{2, 3}, []int64{page[0].Seq, page[1].Seq})

	none, err := s.ChangesSince(ctx, 4, 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.Put(ctx, "local", []byte("l"))
	require.NoError(t, err)

	docs := []Document{
		{ID: "r1", Body: []byte("one"), Seq: 40},
		{ID: "r2", Body: []byte("two"), Seq: 41},
	}
	applied, err := s.Apply(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	doc, err := s.Get(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.Seq, "remote sequence replaced by a local one")

	// Applying the same revisions again changes nothing.
	applied, err = s.Apply(ctx, docs)
	require.NoError(t, err)
	assert.Zero(t, applied)

	last, err := s.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestApply_RejectsEmptyIDAtomically(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.Apply(ctx, []Document{{ID: "ok", Body: []byte("x")}, {ID: ""}})
	require.Error(t, err)

	_, err = s.Get(ctx, "ok")
	assert.True(t, errors.Is(err, ErrNotFound), "transaction rolled back")
}

func TestCheckpoints(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	seq, err := s.Checkpoint(ctx, "ws://peer:80/db/_blipsync", DirectionPush)
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, s.SetCheckpoint(ctx, "ws://peer:80/db/_blipsync", DirectionPush, 12))
	require.NoError(t, s.SetCheckpoint(ctx, "ws://peer:80/db/_blipsync", DirectionPull, 7))
	require.NoError(t, s.SetCheckpoint(ctx, "ws://peer:80/db/_blipsync", DirectionPush, 15))

	push, err := s.Checkpoint(ctx, "ws://peer:80/db/_blipsync", DirectionPush)
	require.NoError(t, err)
	pull, err := s.Checkpoint(ctx, "ws://peer:80/db/_blipsync", DirectionPull)
	require.NoError(t, err)

	assert.Equal(t, int64(15), push)
	assert.Equal(t, int64(7), pull)
}
