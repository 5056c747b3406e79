package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"docvault/internal/models"
)

const refColumns = "hash, kind, ref_count, created_at, updated_at"

// IncrementRef adds one reference to hash/kind, creating the row if needed,
// and returns the new count.
func (s *Store) IncrementRef(ctx context.Context, hash, kind string) (int, error) {
	return incrementRef(ctx, s.db, hash, kind, time.Now())
}

// DecrementRef removes one reference. The count never drops below zero; a
// decrement of a missing or zero row reports underflow instead.
func (s *Store) DecrementRef(ctx context.Context, hash, kind string) (int, bool, error) {
	var (
		count     int
		underflow bool
	)
	err := s.withImmediateTx(ctx, func(q querier) error {
		var err error
		count, underflow, err = decrementRef(ctx, q, hash, kind, time.Now())
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return count, underflow, nil
}

// GetRef returns the reference row, or nil when none exists.
func (s *Store) GetRef(ctx context.Context, hash, kind string) (*models.RefEntry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+refColumns+" FROM blob_refs WHERE hash = ? AND kind = ?", hash, kind)
	entry, err := scanRef(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// HasRef reports whether a row exists for hash/kind, whatever its count.
func (s *Store) HasRef(ctx context.Context, hash, kind string) (bool, error) {
	return refExists(ctx, s.db, hash, kind)
}

// ListRefs returns every reference row ordered by kind and hash.
func (s *Store) ListRefs(ctx context.Context) ([]models.RefEntry, error) {
	return s.queryRefs(ctx, "SELECT "+refColumns+" FROM blob_refs ORDER BY kind, hash")
}

// ZeroRefEntries returns rows whose count has reached zero.
func (s *Store) ZeroRefEntries(ctx context.Context) ([]models.RefEntry, error) {
	return s.queryRefs(ctx, "SELECT "+refColumns+" FROM blob_refs WHERE ref_count = 0 ORDER BY kind, hash")
}

// CollectZeroRef deletes an unreferenced blob and its row in one immediate
// transaction. The count is re-checked under the write lock, so a concurrent
// IncrementRef either lands before (and the blob is kept) or waits until the
// row is gone. If remove fails the row is kept.
func (s *Store) CollectZeroRef(ctx context.Context, hash, kind string, remove func() (bool, error)) (bool, error) {
	var removed bool
	err := s.withImmediateTx(ctx, func(q querier) error {
		var count int
		err := q.QueryRowContext(ctx, "SELECT ref_count FROM blob_refs WHERE hash = ? AND kind = ?", hash, kind).Scan(&count)
		if isNoRows(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if count != 0 {
			return nil
		}

		removed, err = remove()
		if err != nil {
			return fmt.Errorf("remove blob %s/%s: %w", kind, hash, err)
		}
		_, err = q.ExecContext(ctx, "DELETE FROM blob_refs WHERE hash = ? AND kind = ? AND ref_count = 0", hash, kind)
		return err
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// CollectOrphan deletes a blob that has no reference row at all. The absence
// of the row is asserted under the write lock.
func (s *Store) CollectOrphan(ctx context.Context, hash, kind string, remove func() (bool, error)) (bool, error) {
	var removed bool
	err := s.withImmediateTx(ctx, func(q querier) error {
		exists, err := refExists(ctx, q, hash, kind)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		removed, err = remove()
		if err != nil {
			return fmt.Errorf("remove orphan %s/%s: %w", kind, hash, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// ReplaceRefs rewrites the whole table to counts. Rows absent from counts
// are set to zero rather than dropped so that the garbage collector still
// sees them.
func (s *Store) ReplaceRefs(ctx context.Context, counts map[models.RefKey]int) error {
	keys := make([]models.RefKey, 0, len(counts))
	for key, count := range counts {
		if count < 0 {
			return fmt.Errorf("negative count for %s", key)
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	now := formatTime(time.Now())
	return s.withImmediateTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, "UPDATE blob_refs SET ref_count = 0, updated_at = ? WHERE ref_count != 0", now); err != nil {
			return err
		}
		for _, key := range keys {
			_, err := q.ExecContext(ctx,
				`INSERT INTO blob_refs (hash, kind, ref_count, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(hash, kind) DO UPDATE SET ref_count = excluded.ref_count, updated_at = excluded.updated_at`,
				key.Hash, key.Kind, counts[key], now, now,
			)
			if err != nil {
				return fmt.Errorf("write ref %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *Store) queryRefs(ctx context.Context, query string, args ...any) ([]models.RefEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RefEntry
	for rows.Next() {
		entry, err := scanRef(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRef(row scanner) (models.RefEntry, error) {
	var (
		entry            models.RefEntry
		created, updated string
	)
	if err := row.Scan(&entry.Hash, &entry.Kind, &entry.RefCount, &created, &updated); err != nil {
		return models.RefEntry{}, err
	}
	var err error
	if entry.CreatedAt, err = parseTime(created); err != nil {
		return models.RefEntry{}, err
	}
	if entry.UpdatedAt, err = parseTime(updated); err != nil {
		return models.RefEntry{}, err
	}
	return entry, nil
}

func incrementRef(ctx context.Context, q querier, hash, kind string, now time.Time) (int, error) {
	ts := formatTime(now)
	var count int
	err := q.QueryRowContext(ctx,
		`INSERT INTO blob_refs (hash, kind, ref_count, created_at, updated_at) VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(hash, kind) DO UPDATE SET ref_count = ref_count + 1, updated_at = excluded.updated_at
		RETURNING ref_count`,
		hash, kind, ts, ts,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment ref %s/%s: %w", kind, hash, err)
	}
	return count, nil
}

func decrementRef(ctx context.Context, q querier, hash, kind string, now time.Time) (int, bool, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT ref_count FROM blob_refs WHERE hash = ? AND kind = ?", hash, kind).Scan(&count)
	if isNoRows(err) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	if count <= 0 {
		return 0, true, nil
	}
	count--
	if _, err := q.ExecContext(ctx,
		"UPDATE blob_refs SET ref_count = ?, updated_at = ? WHERE hash = ? AND kind = ?",
		count, formatTime(now), hash, kind,
	); err != nil {
		return 0, false, fmt.Errorf("decrement ref %s/%s: %w", kind, hash, err)
	}
	return count, false, nil
}

func refExists(ctx context.Context, q querier, hash, kind string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM blob_refs WHERE hash = ? AND kind = ? LIMIT 1", hash, kind).Scan(&one)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
