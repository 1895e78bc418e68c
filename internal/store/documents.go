package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrInvalidDocID is returned for empty document IDs.
var ErrInvalidDocID = errors.New("invalid document ID")

// Document is one stored document revision.
//
// Seq is the sequence number in the database the document was read from;
// it is reassigned locally whenever the document is written or applied.
type Document struct {
	ID      string `json:"id"`
	Body    []byte `json:"body"`
	Deleted bool   `json:"deleted,omitempty"`
	Seq     int64  `json:"seq"`
}

// normalizeDocID applies Unicode NFC so that visually identical IDs
// entered on different platforms address the same document.
func normalizeDocID(id string) (string, error) {
	if id == "" {
		return "", ErrInvalidDocID
	}
	return norm.NFC.String(id), nil
}

// upsertSQL writes a document under the next sequence number. The WHERE
// clause skips writes that would not change anything, so a revision
// bouncing back from a peer does not get a new sequence and replicate
// forever.
const upsertSQL = `
	INSERT INTO documents (doc_id, body, deleted, seq)
	VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents))
	ON CONFLICT(doc_id) DO UPDATE SET
		body = excluded.body,
		deleted = excluded.deleted,
		seq = excluded.seq
	WHERE documents.body != excluded.body OR documents.deleted != excluded.deleted
`

// Put creates or replaces a document and returns its new sequence number.
// Writing identical content is a no-op and returns the existing sequence.
func (s *Store) Put(ctx context.Context, docID string, body []byte) (int64, error) {
	return s.write(ctx, docID, body, false)
}

// Delete marks a document deleted (a tombstone that still replicates).
func (s *Store) Delete(ctx context.Context, docID string) (int64, error) {
	return s.write(ctx, docID, []byte{}, true)
}

func (s *Store) write(ctx context.Context, docID string, body []byte, deleted bool) (int64, error) {
	id, err := normalizeDocID(docID)
	if err != nil {
		return 0, fmt.Errorf("put document: %w", err)
	}
	if body == nil {
		body = []byte{}
	}

	if _, err := s.db.ExecContext(ctx, upsertSQL, id, body, deleted); err != nil {
		return 0, fmt.Errorf("put document %q: %w", id, err)
	}

	doc, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

// Get returns the current revision of a document, including tombstones.
// Returns ErrNotFound if the document has never existed.
func (s *Store) Get(ctx context.Context, docID string) (*Document, error) {
	id, err := normalizeDocID(docID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, body, deleted, seq
		FROM documents
		WHERE doc_id = ?
	`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get document %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %q: %w", id, err)
	}
	return &doc, nil
}

// ChangesSince returns documents with seq > since in ascending seq order.
// A non-positive limit returns every change.
func (s *Store) ChangesSince(ctx context.Context, since int64, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, body, deleted, seq
		FROM documents
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return docs, nil
}

// Apply writes revisions received from a peer in a single transaction and
// returns how many of them changed the local database. Each applied
// document gets a fresh local sequence number.
func (s *Store) Apply(ctx context.Context, docs []Document) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("apply: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return 0, fmt.Errorf("apply: prepare: %w", err)
	}
	defer stmt.Close()

	applied := 0
	for _, doc := range docs {
		id, err := normalizeDocID(doc.ID)
		if err != nil {
			return 0, fmt.Errorf("apply: %w", err)
		}
		body := doc.Body
		if body == nil {
			body = []byte{}
		}
		res, err := stmt.ExecContext(ctx, id, body, doc.Deleted)
		if err != nil {
			return 0, fmt.Errorf("apply %q: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			applied++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("apply: commit: %w", err)
	}
	return applied, nil
}

// LastSequence returns the highest sequence number in the database, or 0
// if it is empty.
func (s *Store) LastSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM documents`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last sequence: %w", err)
	}
	return seq, nil
}

// Count returns the number of live (non-deleted) documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE deleted = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var doc Document
	if err := row.Scan(&doc.ID, &doc.Body, &doc.Deleted, &doc.Seq); err != nil {
		return Document{}, err
	}
	return doc, nil
}
