// Package locks implements timeout-based per-path mutual exclusion between
// editing sessions on top of the SQLite lock table.
package locks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docvault/internal/metrics"
	"docvault/internal/models"
	"docvault/internal/store"
)

// DefaultTimeout is how long a lock survives without a refresh.
const DefaultTimeout = 5 * time.Minute

// ReleaseResult distinguishes a real release from an idempotent no-op.
type ReleaseResult string

const (
	Released        ReleaseResult = "released"
	AlreadyReleased ReleaseResult = "already_released"
)

// Status is the answer to a lock check.
type Status struct {
	Path      string     `json:"path"`
	Locked    bool       `json:"locked"`
	Owner     string     `json:"owner,omitempty"`
	OwnedByMe bool       `json:"owned_by_me"`
	Stale     bool       `json:"stale"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Manager grants and releases file locks.
type Manager struct {
	store   store.LockStore
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics records lock outcomes.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a lock manager over st.
func NewManager(st store.LockStore, opts ...Option) *Manager {
	m := &Manager{
		store:   st,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "locks")
	return m
}

// Timeout returns the staleness bound.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Acquire tries to take path for sessionID without waiting. It returns
// false, with no error, when another session holds a fresh lock.
func (m *Manager) Acquire(ctx context.Context, path, sessionID string) (bool, error) {
	if err := validate(path, sessionID); err != nil {
		return false, err
	}
	got, err := m.store.AcquireLock(ctx, path, sessionID, m.now(), m.timeout)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	m.metrics.RecordLockAcquire(string(got.Outcome))

	switch got.Outcome {
	case models.LockTakenOver:
		m.logger.Info("stale lock taken over", "path", path, "session", sessionID, "previous", got.PreviousHolder)
	case models.LockConflict:
		m.logger.Debug("lock conflict", "path", path, "session", sessionID, "holder", got.Holder)
	default:
		m.logger.Debug("lock granted", "path", path, "session", sessionID, "outcome", got.Outcome)
	}
	return got.Outcome.Granted(), nil
}

// Lock is Acquire returning ErrLockConflict instead of false.
func (m *Manager) Lock(ctx context.Context, path, sessionID string) error {
	ok, err := m.Acquire(ctx, path, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrLockConflict)
	}
	return nil
}

// Release frees path. Releasing a lock nobody holds succeeds; releasing
// another session's lock returns ErrLockOwnership.
func (m *Manager) Release(ctx context.Context, path, sessionID string) (ReleaseResult, error) {
	if err := validate(path, sessionID); err != nil {
		return "", err
	}
	res, err := m.store.ReleaseLock(ctx, path, sessionID)
	if err != nil {
		return "", fmt.Errorf("release lock %s: %w", path, err)
	}
	switch {
	case res.Released:
		m.metrics.RecordLockRelease(string(Released))
		return Released, nil
	case res.Owner != "":
		m.metrics.RecordLockRelease("ownership_violation")
		m.logger.Warn("release by non-owner", "path", path, "session", sessionID, "owner", res.Owner)
		return "", fmt.Errorf("%s held by %s: %w", path, res.Owner, ErrLockOwnership)
	default:
		m.metrics.RecordLockRelease(string(AlreadyReleased))
		return AlreadyReleased, nil
	}
}

// Check reports who holds path. A stale lock is reported as unlocked with
// Stale set, since any session may take it over.
func (m *Manager) Check(ctx context.Context, path, sessionID string) (Status, error) {
	if _, err := models.CleanPath(path); err != nil {
		return Status{}, err
	}
	lock, err := m.store.GetLock(ctx, path)
	if err != nil {
		return Status{}, fmt.Errorf("check lock %s: %w", path, err)
	}
	status := Status{Path: path}
	if lock == nil {
		return status, nil
	}
	updated := lock.UpdatedAt
	status.Owner = lock.SessionID
	status.UpdatedAt = &updated
	status.OwnedByMe = sessionID != "" && lock.SessionID == sessionID
	status.Stale = lock.IsStale(m.now(), m.timeout)
	status.Locked = !status.Stale
	return status, nil
}

// Heartbeat extends a lock the session already holds.
func (m *Manager) Heartbeat(ctx context.Context, path, sessionID string) error {
	if err := validate(path, sessionID); err != nil {
		return err
	}
	ok, err := m.store.RefreshLock(ctx, path, sessionID, m.now())
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrLockNotHeld)
	}
	return nil
}

// PurgeStale deletes every lock older than the timeout.
func (m *Manager) PurgeStale(ctx context.Context) (int, error) {
	n, err := m.store.PurgeStaleLocks(ctx, m.now(), m.timeout)
	if err != nil {
		return 0, fmt.Errorf("purge stale locks: %w", err)
	}
	m.metrics.RecordLocksPurged(n)
	if n > 0 {
		m.logger.Info("purged stale locks", "count", n)
	}
	return n, nil
}

// AllActive maps each locked path to its owning session, skipping stale rows.
func (m *Manager) AllActive(ctx context.Context) (map[string]string, error) {
	locks, err := m.store.ListLocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	now := m.now()
	out := make(map[string]string, len(locks))
	for _, lock := range locks {
		if lock.IsStale(now, m.timeout) {
			continue
		}
		out[lock.Path] = lock.SessionID
	}
	return out, nil
}

// List returns every lock row including stale ones.
func (m *Manager) List(ctx context.Context) ([]models.Lock, error) {
	return m.store.ListLocks(ctx)
}

// ReleaseSession drops every lock held by sessionID.
func (m *Manager) ReleaseSession(ctx context.Context, sessionID string) (int, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, fmt.Errorf("session id is required")
	}
	n, err := m.store.DeleteSessionLocks(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("release session locks: %w", err)
	}
	return n, nil
}

func validate(path, sessionID string) error {
	if _, err := models.CleanPath(path); err != nil {
		return err
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	return nil
}
