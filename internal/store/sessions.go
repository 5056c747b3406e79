package store

import (
	"context"
	"fmt"
	"time"

	"docvault/internal/models"
)

const sessionColumns = "id, user_name, token_hash, created_at, last_seen_at"

// SessionTeardown reports what DeleteSession removed.
type SessionTeardown struct {
	Found         bool
	LocksReleased int
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions ("+sessionColumns+") VALUES (?, ?, ?, ?, ?)",
		session.ID, session.User, session.TokenHash,
		formatTime(session.CreatedAt), formatTime(session.LastSeenAt),
	)
	return err
}

// GetSession returns the session or nil when it does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	session, err := scanSession(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// TouchSession records activity for a session.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE sessions SET last_seen_at = ? WHERE id = ?", formatTime(at), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteSession removes a session and releases its locks atomically.
func (s *Store) DeleteSession(ctx context.Context, id string) (SessionTeardown, error) {
	var out SessionTeardown
	err := s.withImmediateTx(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		out.Found = n > 0
		out.LocksReleased, err = deleteSessionLocks(ctx, q, id)
		return err
	})
	if err != nil {
		return SessionTeardown{}, err
	}
	return out, nil
}

// ListSessions returns all sessions, most recently seen first.
func (s *Store) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM sessions ORDER BY last_seen_at DESC, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func scanSession(row scanner) (models.Session, error) {
	var (
		session       models.Session
		created, seen string
	)
	if err := row.Scan(&session.ID, &session.User, &session.TokenHash, &created, &seen); err != nil {
		return models.Session{}, err
	}
	var err error
	if session.CreatedAt, err = parseTime(created); err != nil {
		return models.Session{}, err
	}
	if session.LastSeenAt, err = parseTime(seen); err != nil {
		return models.Session{}, err
	}
	return session, nil
}
