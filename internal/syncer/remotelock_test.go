package syncer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteLockAcquireRelease(t *testing.T) {
	ctx := context.Background()
	remote, dir := testRemote(t)
	lock := NewRemoteLock(remote, WithPollInterval(5*time.Millisecond))
	assert.Equal(t, LockUnlocked, lock.State())

	ok, err := lock.Acquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, LockHeld, lock.State())
	assert.Contains(t, readAt(t, dir, LockFile), lock.Owner())

	lock.Release(ctx)
	assert.Equal(t, LockUnlocked, lock.State())
	assert.False(t, exists(dir, LockFile))
}

func TestRemoteLockContention(t *testing.T) {
	ctx := context.Background()
	remote, dir := testRemote(t)
	first := NewRemoteLock(remote, WithPollInterval(5*time.Millisecond))
	second := NewRemoteLock(remote, WithPollInterval(5*time.Millisecond))

	ok, err := first.Acquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx, 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, LockUnlocked, second.State())

	// Releasing a lock we do not hold leaves the holder's marker.
	second.Release(ctx)
	assert.True(t, exists(dir, LockFile))

	done := make(chan bool, 1)
	go func() {
		ok, _ := second.Acquire(ctx, 2*time.Second)
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	first.Release(ctx)
	assert.True(t, <-done)
	assert.Contains(t, readAt(t, dir, LockFile), second.Owner())
}

func TestRemoteLockStaleMarkers(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("old timestamp", func(t *testing.T) {
		remote, dir := testRemote(t)
		old := now.Add(-2 * DefaultStaleAfter).UTC()
		writeAt(t, dir, LockFile, `{"timestamp":"`+old.Format(time.RFC3339Nano)+`","owner":"dead"}`, now)

		lock := NewRemoteLock(remote)
		ok, err := lock.Acquire(ctx, 0)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unparsable body dated by mtime", func(t *testing.T) {
		remote, dir := testRemote(t)
		writeAt(t, dir, LockFile, "garbage", now.Add(-2*DefaultStaleAfter))

		lock := NewRemoteLock(remote)
		ok, err := lock.Acquire(ctx, 0)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("fresh unparsable body is respected", func(t *testing.T) {
		remote, dir := testRemote(t)
		writeAt(t, dir, LockFile, "garbage", now)

		lock := NewRemoteLock(remote)
		ok, err := lock.Acquire(ctx, 0)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRemoteLockHonorsContext(t *testing.T) {
	remote, dir := testRemote(t)
	writeAt(t, dir, LockFile, `{"timestamp":"`+time.Now().UTC().Format(time.RFC3339Nano)+`","owner":"other"}`, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	lock := NewRemoteLock(remote, WithPollInterval(5*time.Millisecond))
	ok, err := lock.Acquire(ctx, time.Minute)
	assert.False(t, ok)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRemoteLockRefreshOutlivesStaleWindow(t *testing.T) {
	ctx := context.Background()
	remote, dir := testRemote(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	holder := NewRemoteLock(remote, WithLockClock(clock.Now), WithStaleAfter(time.Minute))
	other := NewRemoteLock(remote, WithLockClock(clock.Now), WithStaleAfter(time.Minute))

	ok, err := holder.Acquire(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(45 * time.Second)
	require.NoError(t, holder.Refresh(ctx))
	clock.Advance(45 * time.Second)

	// 90s after acquiring but only 45s after the refresh.
	ok, err = other.Acquire(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, holder.Confirm(ctx))

	clock.Advance(2 * time.Minute)
	ok, err = other.Acquire(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, holder.Confirm(ctx), ErrSyncLockLost)
	assert.ErrorIs(t, holder.Refresh(ctx), ErrSyncLockLost)
	assert.Equal(t, LockUnlocked, holder.State())
	assert.Contains(t, readAt(t, dir, LockFile), other.Owner())

	holder.Release(ctx)
	assert.True(t, exists(dir, LockFile))
}

func TestRemoteLockKeepAlive(t *testing.T) {
	ctx := context.Background()
	remote, dir := testRemote(t)
	lock := NewRemoteLock(remote, WithStaleAfter(30*time.Millisecond))

	ok, err := lock.Acquire(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)

	// A read racing a refresh may see a partial body; that counts as no
	// timestamp.
	stamp := func() time.Time {
		var m lockMarker
		data, err := os.ReadFile(filepath.Join(dir, LockFile))
		if err != nil || json.Unmarshal(data, &m) != nil {
			return time.Time{}
		}
		return m.Timestamp
	}
	first := stamp()

	stop := lock.KeepAlive(ctx)
	require.Eventually(t, func() bool { return stamp().After(first) }, time.Second, 5*time.Millisecond)
	stop()

	last := stamp()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, last, stamp())
	lock.Release(ctx)
}
