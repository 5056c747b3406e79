package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"docvault/internal/replica"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultStaleAfter is shorter than the file lock timeout: a sync run
	// that has not finished in a minute is assumed dead.
	DefaultStaleAfter = 60 * time.Second
)

// LockState is the position of a RemoteLock in its protocol.
type LockState string

const (
	LockUnlocked  LockState = "unlocked"
	LockAcquiring LockState = "acquiring"
	LockHeld      LockState = "held"
)

// lockMarker is the JSON body of version.txt.lock. Only Owner is used to
// decide ownership; the rest is there for people inspecting the remote.
type lockMarker struct {
	Timestamp time.Time `json:"timestamp"`
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	Owner     string    `json:"owner"`
}

// RemoteLock serializes sync runs across processes and machines with a
// marker file. The remote has no create-exclusive primitive, so the lock is
// best-effort: after writing the marker it is read back and the owner token
// compared, which narrows but does not close the race.
type RemoteLock struct {
	fs           replica.FS
	owner        string
	host         string
	pid          int
	pollInterval time.Duration
	staleAfter   time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu    sync.Mutex
	state LockState
}

// RemoteLockOption configures a RemoteLock.
type RemoteLockOption func(*RemoteLock)

// WithPollInterval sets how often a held marker is re-checked.
func WithPollInterval(d time.Duration) RemoteLockOption {
	return func(l *RemoteLock) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithStaleAfter sets the age after which a marker is considered abandoned.
func WithStaleAfter(d time.Duration) RemoteLockOption {
	return func(l *RemoteLock) {
		if d > 0 {
			l.staleAfter = d
		}
	}
}

// WithLockClock replaces time.Now.
func WithLockClock(now func() time.Time) RemoteLockOption {
	return func(l *RemoteLock) { l.now = now }
}

// WithLockLogger sets the logger.
func WithLockLogger(logger *slog.Logger) RemoteLockOption {
	return func(l *RemoteLock) { l.logger = logger }
}

// NewRemoteLock creates an unlocked RemoteLock with a fresh owner token.
func NewRemoteLock(remote replica.FS, opts ...RemoteLockOption) *RemoteLock {
	host, _ := os.Hostname()
	l := &RemoteLock{
		fs:           remote,
		owner:        uuid.NewString(),
		host:         host,
		pid:          os.Getpid(),
		pollInterval: DefaultPollInterval,
		staleAfter:   DefaultStaleAfter,
		now:          time.Now,
		logger:       slog.Default(),
		state:        LockUnlocked,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "remotelock")
	return l
}

// Owner returns the token written into markers.
func (l *RemoteLock) Owner() string {
	return l.owner
}

// State returns the current protocol state.
func (l *RemoteLock) State() LockState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *RemoteLock) setState(s LockState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Acquire polls until the marker is ours or timeout elapses. It returns
// false without error on timeout.
func (l *RemoteLock) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	if l.State() == LockHeld {
		return true, nil
	}
	l.setState(LockAcquiring)
	deadline := l.now().Add(timeout)

	for {
		ok, err := l.try(ctx)
		if err != nil {
			l.setState(LockUnlocked)
			return false, err
		}
		if ok {
			l.setState(LockHeld)
			return true, nil
		}
		if !l.now().Before(deadline) {
			l.setState(LockUnlocked)
			return false, nil
		}

		t := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			l.setState(LockUnlocked)
			return false, ctx.Err()
		case <-t.C:
		}
	}
}

// try makes one attempt: clear a stale marker, write ours if there is
// none, and confirm by reading it back.
func (l *RemoteLock) try(ctx context.Context) (bool, error) {
	current, found, err := l.read(ctx)
	if err != nil {
		return false, err
	}
	if found {
		if current.Owner == l.owner {
			return true, nil
		}
		age := l.now().Sub(current.Timestamp)
		if age <= l.staleAfter {
			return false, nil
		}
		l.logger.Warn("removing stale sync lock", "owner", current.Owner, "host", current.Host, "age", age)
		if err := l.fs.Remove(ctx, LockFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("remove stale sync lock: %w", err)
		}
	}

	body, err := json.Marshal(lockMarker{Timestamp: l.now().UTC(), PID: l.pid, Host: l.host, Owner: l.owner})
	if err != nil {
		return false, err
	}
	if err := l.fs.Write(ctx, LockFile, body); err != nil {
		return false, fmt.Errorf("write sync lock: %w", err)
	}

	check, found, err := l.read(ctx)
	if err != nil {
		return false, err
	}
	if !found || check.Owner != l.owner {
		l.logger.Debug("lost sync lock race", "winner", check.Owner)
		return false, nil
	}
	return true, nil
}

// read returns the current marker. An unparsable marker is dated by its
// file mtime so that it eventually goes stale.
func (l *RemoteLock) read(ctx context.Context) (lockMarker, bool, error) {
	data, err := l.fs.Read(ctx, LockFile)
	if errors.Is(err, fs.ErrNotExist) {
		return lockMarker{}, false, nil
	}
	if err != nil {
		return lockMarker{}, false, fmt.Errorf("read sync lock: %w", err)
	}
	var m lockMarker
	if err := json.Unmarshal(data, &m); err != nil || m.Timestamp.IsZero() {
		entry, statErr := l.fs.Stat(ctx, LockFile)
		if errors.Is(statErr, fs.ErrNotExist) {
			return lockMarker{}, false, nil
		}
		if statErr != nil {
			return lockMarker{}, false, fmt.Errorf("stat sync lock: %w", statErr)
		}
		return lockMarker{Timestamp: entry.ModTime}, true, nil
	}
	return m, true, nil
}

// Confirm reads the marker back and returns ErrSyncLockLost unless it is
// still ours.
func (l *RemoteLock) Confirm(ctx context.Context) error {
	current, found, err := l.read(ctx)
	if err != nil {
		return err
	}
	if !found || current.Owner != l.owner {
		l.setState(LockUnlocked)
		l.logger.Warn("sync lock lost", "owner", current.Owner)
		return ErrSyncLockLost
	}
	return nil
}

// Refresh rewrites our marker with the current time so that other clients
// keep treating it as live.
func (l *RemoteLock) Refresh(ctx context.Context) error {
	if err := l.Confirm(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(lockMarker{Timestamp: l.now().UTC(), PID: l.pid, Host: l.host, Owner: l.owner})
	if err != nil {
		return err
	}
	if err := l.fs.Write(ctx, LockFile, body); err != nil {
		return fmt.Errorf("refresh sync lock: %w", err)
	}
	return nil
}

// KeepAlive refreshes the marker every third of the stale window until the
// returned stop func is called. Refresh failures are logged; a lost lock
// ends the loop and is left for Confirm to report.
func (l *RemoteLock) KeepAlive(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		every := l.staleAfter / 3
		if every <= 0 {
			every = time.Millisecond
		}
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := l.Refresh(ctx)
			if errors.Is(err, ErrSyncLockLost) {
				return
			}
			if err != nil && ctx.Err() == nil {
				l.logger.Warn("could not refresh sync lock", "err", err)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Release removes the marker if it is still ours. Failures are logged and
// left for stale detection to clean up.
func (l *RemoteLock) Release(ctx context.Context) {
	defer l.setState(LockUnlocked)

	current, found, err := l.read(ctx)
	if err != nil {
		l.logger.Warn("could not read sync lock on release", "err", err)
		return
	}
	if !found {
		return
	}
	if current.Owner != l.owner {
		l.logger.Warn("sync lock owned by someone else on release", "owner", current.Owner)
		return
	}
	if err := l.fs.Remove(ctx, LockFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("could not remove sync lock", "err", err)
	}
}
