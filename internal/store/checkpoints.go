package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Direction names a replication direction for checkpointing.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// Checkpoint returns the last sequence replicated with peer in the given
// direction, or 0 if the pair has never replicated.
//
// For push the sequence is local; for pull it is the peer's.
func (s *Store) Checkpoint(ctx context.Context, peer string, dir Direction) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT seq FROM checkpoints WHERE peer = ? AND direction = ?
	`, peer, string(dir)).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s checkpoint for %s: %w", dir, peer, err)
	}
	return seq, nil
}

// SetCheckpoint records the last sequence replicated with peer.
func (s *Store) SetCheckpoint(ctx context.Context, peer string, dir Direction, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (peer, direction, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(peer, direction) DO UPDATE SET seq = excluded.seq
	`, peer, string(dir), seq)
	if err != nil {
		return fmt.Errorf("write %s checkpoint for %s: %w", dir, peer, err)
	}
	return nil
}
