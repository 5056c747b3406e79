package syncer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"docvault/internal/replica"
)

const (
	versionCacheFile = "sync_version"
	dirtyFile        = "sync_dirty"
	pendingBumpFile  = "sync_pending_bump"
)

// LocalState holds what this client remembers between runs: the remote
// version it last synced against, whether local changes are pending and
// whether an earlier run changed the remote without bumping its version.
type LocalState struct {
	fs replica.FS
}

// NewLocalState keeps its files in dir.
func NewLocalState(dir string) (*LocalState, error) {
	fsys, err := replica.NewOSFS(dir)
	if err != nil {
		return nil, err
	}
	return &LocalState{fs: fsys}, nil
}

// CachedVersion returns the last synced remote version. ok is false when
// nothing has been cached or the cache is unreadable.
func (s *LocalState) CachedVersion(ctx context.Context) (version int, ok bool, err error) {
	data, err := s.fs.Read(ctx, versionCacheFile)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// SetCachedVersion records the remote version a run finished against.
func (s *LocalState) SetCachedVersion(ctx context.Context, version int) error {
	if err := s.fs.Write(ctx, versionCacheFile, []byte(strconv.Itoa(version)+"\n")); err != nil {
		return fmt.Errorf("cache sync version: %w", err)
	}
	return nil
}

// MarkDirty records that local content changed since the last sync. Every
// call writes a new token, so a run that started before the change does
// not clear it.
func (s *LocalState) MarkDirty(ctx context.Context) error {
	token := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := s.fs.Write(ctx, dirtyFile, []byte(token)); err != nil {
		return fmt.Errorf("mark dirty: %w", err)
	}
	return nil
}

// DirtyToken returns the current dirty token, or "" when clean.
func (s *LocalState) DirtyToken(ctx context.Context) (string, error) {
	data, err := s.fs.Read(ctx, dirtyFile)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		// An empty flag file still means dirty.
		token = "dirty"
	}
	return token, nil
}

// Dirty reports whether local changes are pending.
func (s *LocalState) Dirty(ctx context.Context) (bool, error) {
	token, err := s.DirtyToken(ctx)
	return token != "", err
}

// ClearDirty removes the flag if it still holds token.
func (s *LocalState) ClearDirty(ctx context.Context, token string) error {
	current, err := s.DirtyToken(ctx)
	if err != nil {
		return err
	}
	if current == "" || current != token {
		return nil
	}
	if err := s.fs.Remove(ctx, dirtyFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear dirty: %w", err)
	}
	return nil
}

// MarkPendingBump records that the remote is about to change. It stays set
// until a run has bumped the version after the change.
func (s *LocalState) MarkPendingBump(ctx context.Context) error {
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := s.fs.Write(ctx, pendingBumpFile, []byte(stamp)); err != nil {
		return fmt.Errorf("mark pending version bump: %w", err)
	}
	return nil
}

// PendingBump reports whether the remote was changed by a run that did not
// get as far as bumping the version.
func (s *LocalState) PendingBump(ctx context.Context) (bool, error) {
	_, err := s.fs.Stat(ctx, pendingBumpFile)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClearPendingBump forgets the flag once the version has been bumped.
func (s *LocalState) ClearPendingBump(ctx context.Context) error {
	if err := s.fs.Remove(ctx, pendingBumpFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear pending version bump: %w", err)
	}
	return nil
}
