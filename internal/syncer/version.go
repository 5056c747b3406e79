package syncer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"docvault/internal/replica"
)

const (
	// VersionFile holds the remote version counter.
	VersionFile = "version.txt"
	// LockFile is the marker that serializes sync runs.
	LockFile = VersionFile + ".lock"
)

// VersionCounter is the monotonic counter stored on the remote. It changes
// whenever a sync pushed something, so an unchanged counter means there is
// nothing to pull.
type VersionCounter struct {
	fs replica.FS
}

// NewVersionCounter returns the counter stored on remote.
func NewVersionCounter(remote replica.FS) *VersionCounter {
	return &VersionCounter{fs: remote}
}

// Get reads the counter, writing 1 if the remote has none yet.
func (v *VersionCounter) Get(ctx context.Context) (int, error) {
	data, err := v.fs.Read(ctx, VersionFile)
	if errors.Is(err, fs.ErrNotExist) {
		if err := v.write(ctx, 1); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	return parseVersion(data)
}

// Increment adds one to the counter. The remote has no atomic increment, so
// the caller must hold the remote lock.
func (v *VersionCounter) Increment(ctx context.Context) (int, error) {
	current, err := v.Get(ctx)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := v.write(ctx, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (v *VersionCounter) write(ctx context.Context, n int) error {
	if err := v.fs.Write(ctx, VersionFile, []byte(strconv.Itoa(n)+"\n")); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	return nil
}

func parseVersion(data []byte) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		if err == nil {
			err = fmt.Errorf("negative value %d", n)
		}
		return 0, &StructuralError{Op: "parse", Path: VersionFile, Err: err}
	}
	return n, nil
}
