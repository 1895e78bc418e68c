// Package store provides the SQLite-backed local document database that
// replication sessions read from and write to.
//
// The store holds:
//   - Documents: ID, opaque body, tombstone flag, local sequence number
//   - Checkpoints: last sequence replicated per (peer, direction)
//
// # Sequences
//
// Every write assigns the next local sequence number (MAX(seq) + 1), so
// ChangesSince(n) is an ordered change feed. Writes that would not change
// a document are skipped and keep their sequence; this is what lets two
// databases replicating in both directions converge instead of bouncing
// the same revision back and forth.
//
// # Document IDs
//
// IDs are normalized to Unicode NFC (golang.org/x/text) before use.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Replication opens independent handles with OpenAgain so that the
// caller's handle and the replication session's handles have separate
// lifetimes.
package store
