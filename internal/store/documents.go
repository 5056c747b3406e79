package store

import (
	"context"
	"fmt"
	"time"

	"docvault/internal/models"
)

const documentColumns = "path, hash, kind, size_bytes, deleted, created_at, updated_at"

// DocumentChange reports the effect of a document mutation on the reference
// table. Underflow lists keys whose decrement found nothing to release.
type DocumentChange struct {
	Previous    *models.Document
	Current     *models.Document
	Incremented *models.RefKey
	Decremented *models.RefKey
	Underflow   []models.RefKey
}

// GetDocument returns the document at path, or nil when there is none.
// Tombstoned documents are returned with Deleted set.
func (s *Store) GetDocument(ctx context.Context, path string) (*models.Document, error) {
	return getDocument(ctx, s.db, path)
}

// ListDocuments returns documents ordered by path.
func (s *Store) ListDocuments(ctx context.Context, includeDeleted bool) ([]models.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents"
	if !includeDeleted {
		query += " WHERE deleted = 0"
	}
	query += " ORDER BY path"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// PutDocument stores doc as the live content of its path. The reference on
// the new blob is taken and the one on the replaced blob released in the
// same transaction.
func (s *Store) PutDocument(ctx context.Context, doc models.Document) (DocumentChange, error) {
	doc.Deleted = false
	var change DocumentChange
	err := s.withImmediateTx(ctx, func(q querier) error {
		var err error
		change, err = swapDocument(ctx, q, doc.Path, &doc)
		return err
	})
	return change, err
}

// MarkDocumentDeleted tombstones the live document at path. A path with no
// live document is left alone and reported with a nil Previous.
func (s *Store) MarkDocumentDeleted(ctx context.Context, path string, at time.Time) (DocumentChange, error) {
	var change DocumentChange
	err := s.withImmediateTx(ctx, func(q querier) error {
		prev, err := getDocument(ctx, q, path)
		if err != nil {
			return err
		}
		if prev == nil || prev.Deleted {
			return nil
		}
		next := *prev
		next.Deleted = true
		next.UpdatedAt = at
		change, err = swapDocument(ctx, q, path, &next)
		return err
	})
	return change, err
}

// RestoreDocument puts prev back at path, undoing a PutDocument whose blob
// write failed. A nil prev removes the row entirely.
func (s *Store) RestoreDocument(ctx context.Context, path string, prev *models.Document) (DocumentChange, error) {
	var change DocumentChange
	err := s.withImmediateTx(ctx, func(q querier) error {
		var err error
		change, err = swapDocument(ctx, q, path, prev)
		return err
	})
	return change, err
}

// swapDocument replaces the row at path with next (nil deletes it) and
// moves one reference from the old live blob to the new one. Rewriting a
// path with the same blob leaves the counts untouched.
func swapDocument(ctx context.Context, q querier, path string, next *models.Document) (DocumentChange, error) {
	now := time.Now()
	prev, err := getDocument(ctx, q, path)
	if err != nil {
		return DocumentChange{}, err
	}
	change := DocumentChange{Previous: prev}

	if next == nil {
		if _, err := q.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", path); err != nil {
			return DocumentChange{}, err
		}
	} else {
		doc := *next
		doc.Path = path
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = now
		}
		if prev != nil {
			doc.CreatedAt = prev.CreatedAt
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = doc.UpdatedAt
		}
		_, err := q.ExecContext(ctx,
			`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, kind = excluded.kind,
				size_bytes = excluded.size_bytes, deleted = excluded.deleted, updated_at = excluded.updated_at`,
			doc.Path, doc.Hash, doc.Kind, doc.SizeBytes, boolInt(doc.Deleted),
			formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt),
		)
		if err != nil {
			return DocumentChange{}, fmt.Errorf("write document %s: %w", path, err)
		}
		change.Current = &doc
	}

	oldKey := liveKey(prev)
	newKey := liveKey(change.Current)
	if oldKey != nil && newKey != nil && *oldKey == *newKey {
		return change, nil
	}
	if newKey != nil {
		if _, err := incrementRef(ctx, q, newKey.Hash, newKey.Kind, now); err != nil {
			return DocumentChange{}, err
		}
		change.Incremented = newKey
	}
	if oldKey != nil {
		_, underflow, err := decrementRef(ctx, q, oldKey.Hash, oldKey.Kind, now)
		if err != nil {
			return DocumentChange{}, err
		}
		change.Decremented = oldKey
		if underflow {
			change.Underflow = append(change.Underflow, *oldKey)
		}
	}
	return change, nil
}

func liveKey(doc *models.Document) *models.RefKey {
	if doc == nil || doc.Deleted {
		return nil
	}
	return &models.RefKey{Hash: doc.Hash, Kind: doc.Kind}
}

func getDocument(ctx context.Context, q querier, path string) (*models.Document, error) {
	row := q.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE path = ?", path)
	doc, err := scanDocument(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func scanDocument(row scanner) (models.Document, error) {
	var (
		doc              models.Document
		deleted          int
		created, updated string
	)
	if err := row.Scan(&doc.Path, &doc.Hash, &doc.Kind, &doc.SizeBytes, &deleted, &created, &updated); err != nil {
		return models.Document{}, err
	}
	doc.Deleted = deleted != 0
	var err error
	if doc.CreatedAt, err = parseTime(created); err != nil {
		return models.Document{}, err
	}
	if doc.UpdatedAt, err = parseTime(updated); err != nil {
		return models.Document{}, err
	}
	return doc, nil
}
