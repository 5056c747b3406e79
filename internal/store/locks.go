package store

import (
	"context"
	"time"

	"docvault/internal/models"
)

const lockColumns = "path, session_id, acquired_at, updated_at"

// LockAcquisition is the result of one acquire attempt. Holder is the
// session that owns the lock afterwards; PreviousHolder is set on takeover
// and conflict.
type LockAcquisition struct {
	Outcome        models.LockOutcome
	Holder         string
	PreviousHolder string
}

// LockRelease is the result of one release attempt.
type LockRelease struct {
	Released bool
	// Owner is the current holder when the lock exists but belongs to
	// another session.
	Owner string
}

// AcquireLock grants path to sessionID if it is free, already owned by the
// caller, or held by a lock older than timeout. The read and the write run
// in one immediate transaction.
func (s *Store) AcquireLock(ctx context.Context, path, sessionID string, now time.Time, timeout time.Duration) (LockAcquisition, error) {
	var result LockAcquisition
	err := s.withImmediateTx(ctx, func(q querier) error {
		existing, err := getLock(ctx, q, path)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			_, err = q.ExecContext(ctx,
				"INSERT INTO file_locks ("+lockColumns+") VALUES (?, ?, ?, ?)",
				path, sessionID, nanos(now), nanos(now),
			)
			result = LockAcquisition{Outcome: models.LockAcquired, Holder: sessionID}
		case existing.SessionID == sessionID:
			_, err = q.ExecContext(ctx,
				"UPDATE file_locks SET updated_at = ? WHERE path = ?",
				nanos(now), path,
			)
			result = LockAcquisition{Outcome: models.LockRefreshed, Holder: sessionID}
		case existing.IsStale(now, timeout):
			_, err = q.ExecContext(ctx,
				"UPDATE file_locks SET session_id = ?, acquired_at = ?, updated_at = ? WHERE path = ?",
				sessionID, nanos(now), nanos(now), path,
			)
			result = LockAcquisition{Outcome: models.LockTakenOver, Holder: sessionID, PreviousHolder: existing.SessionID}
		default:
			result = LockAcquisition{Outcome: models.LockConflict, Holder: existing.SessionID, PreviousHolder: existing.SessionID}
		}
		return err
	})
	if err != nil {
		return LockAcquisition{}, err
	}
	return result, nil
}

// ReleaseLock removes the lock on path if sessionID owns it.
func (s *Store) ReleaseLock(ctx context.Context, path, sessionID string) (LockRelease, error) {
	var result LockRelease
	err := s.withImmediateTx(ctx, func(q querier) error {
		existing, err := getLock(ctx, q, path)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		if existing.SessionID != sessionID {
			result.Owner = existing.SessionID
			return nil
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM file_locks WHERE path = ? AND session_id = ?", path, sessionID); err != nil {
			return err
		}
		result.Released = true
		return nil
	})
	if err != nil {
		return LockRelease{}, err
	}
	return result, nil
}

// RefreshLock bumps the heartbeat of a lock held by sessionID.
func (s *Store) RefreshLock(ctx context.Context, path, sessionID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE file_locks SET updated_at = ? WHERE path = ? AND session_id = ?",
		nanos(now), path, sessionID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetLock returns the lock row for path, stale or not, or nil.
func (s *Store) GetLock(ctx context.Context, path string) (*models.Lock, error) {
	return getLock(ctx, s.db, path)
}

// ListLocks returns every lock row ordered by path, including stale ones.
func (s *Store) ListLocks(ctx context.Context) ([]models.Lock, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+lockColumns+" FROM file_locks ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Lock
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lock)
	}
	return out, rows.Err()
}

// PurgeStaleLocks deletes locks whose last heartbeat is older than timeout.
func (s *Store) PurgeStaleLocks(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	cutoff := nanos(now.Add(-timeout))
	res, err := s.db.ExecContext(ctx, "DELETE FROM file_locks WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteSessionLocks releases every lock held by sessionID.
func (s *Store) DeleteSessionLocks(ctx context.Context, sessionID string) (int, error) {
	return deleteSessionLocks(ctx, s.db, sessionID)
}

func deleteSessionLocks(ctx context.Context, q querier, sessionID string) (int, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM file_locks WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func getLock(ctx context.Context, q querier, path string) (*models.Lock, error) {
	row := q.QueryRowContext(ctx, "SELECT "+lockColumns+" FROM file_locks WHERE path = ?", path)
	lock, err := scanLock(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func scanLock(row scanner) (models.Lock, error) {
	var (
		lock              models.Lock
		acquired, updated int64
	)
	if err := row.Scan(&lock.Path, &lock.SessionID, &acquired, &updated); err != nil {
		return models.Lock{}, err
	}
	lock.AcquiredAt = fromNanos(acquired)
	lock.UpdatedAt = fromNanos(updated)
	return lock, nil
}
