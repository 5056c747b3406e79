package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/replica"
)

type recordingObserver struct {
	mu         sync.Mutex
	downloaded map[string]string
	removed    []string
	failOn     string
	// afterChange runs once the tree change is done, before the observer
	// returns.
	afterChange func(path string)
}

func (o *recordingObserver) Downloaded(_ context.Context, path string, content []byte, write func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if path == o.failOn {
		return errors.New("bookkeeping failed")
	}
	if o.downloaded == nil {
		o.downloaded = map[string]string{}
	}
	o.downloaded[path] = string(content)
	return o.change(path, write)
}

func (o *recordingObserver) RemovedLocal(_ context.Context, path string, remove func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if path == o.failOn {
		return errors.New("bookkeeping failed")
	}
	o.removed = append(o.removed, path)
	return o.change(path, remove)
}

func (o *recordingObserver) change(path string, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	if o.afterChange != nil {
		o.afterChange(path)
	}
	return nil
}

type testEnv struct {
	localDir  string
	remoteDir string
	state     *LocalState
	obs       *recordingObserver
	engine    *Engine
}

func newTestEnv(t *testing.T, keep bool, wrapRemote func(replica.FS) replica.FS, opts ...Option) *testEnv {
	t.Helper()
	return newTestEnvAt(t, t.TempDir(), keep, wrapRemote, opts...)
}

// newTestEnvAt builds a client on an existing remote directory.
func newTestEnvAt(t *testing.T, remoteDir string, keep bool, wrapRemote func(replica.FS) replica.FS, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		localDir:  t.TempDir(),
		remoteDir: remoteDir,
		obs:       &recordingObserver{},
	}
	local, err := replica.NewOSFS(env.localDir)
	require.NoError(t, err)
	remoteFS, err := replica.NewOSFS(env.remoteDir)
	require.NoError(t, err)
	var remote replica.FS = remoteFS
	if wrapRemote != nil {
		remote = wrapRemote(remote)
	}
	env.state, err = NewLocalState(t.TempDir())
	require.NoError(t, err)

	env.engine = NewEngine(local, remote, env.state, Config{
		KeepDeletedMarkers: keep,
		LockTimeout:        200 * time.Millisecond,
		LockPollInterval:   10 * time.Millisecond,
	}, append([]Option{WithObserver(env.obs)}, opts...)...)
	return env
}

// peer is a second client sharing e's remote.
func (e *testEnv) peer(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvAt(t, e.remoteDir, e.engine.cfg.KeepDeletedMarkers, nil)
}

func (e *testEnv) run(t *testing.T, force bool) Summary {
	t.Helper()
	sum, err := e.engine.Run(context.Background(), RunOptions{Force: force})
	require.NoError(t, err)
	return sum
}

func writeAt(t *testing.T, dir, name, content string, at time.Time) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(p, at, at))
}

func readAt(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
	return err == nil
}

func mtime(t *testing.T, dir, name string) int64 {
	t.Helper()
	info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
	require.NoError(t, err)
	return info.ModTime().Unix()
}

func remoteVersion(t *testing.T, env *testEnv) string {
	return strings.TrimSpace(readAt(t, env.remoteDir, VersionFile))
}

func TestSyncLocalFileBeatsOlderRemoteMarker(t *testing.T) {
	env := newTestEnv(t, false, nil)
	writeAt(t, env.localDir, "doc/a.xml", "<tei/>", time.Unix(100, 0))
	writeAt(t, env.remoteDir, "doc/a.xml.deleted", "gone\n", time.Unix(50, 0))

	sum := env.run(t, false)

	assert.Equal(t, 1, sum.Uploads)
	assert.Equal(t, 1, sum.RemoteDeletes)
	assert.True(t, sum.VersionBumped)
	assert.Equal(t, 2, sum.RemoteVersion)
	assert.Equal(t, "2", remoteVersion(t, env))
	assert.Equal(t, "<tei/>", readAt(t, env.remoteDir, "doc/a.xml"))
	assert.False(t, exists(env.remoteDir, "doc/a.xml.deleted"))
	assert.Equal(t, mtime(t, env.remoteDir, "doc/a.xml"), mtime(t, env.localDir, "doc/a.xml"))
}

func TestSyncPushesLocalOnlyMarker(t *testing.T) {
	env := newTestEnv(t, false, nil)
	writeAt(t, env.localDir, "v.txt.deleted", "x", time.Unix(500, 0))

	sum := env.run(t, false)

	assert.Equal(t, 1, sum.Uploads)
	assert.Equal(t, 1, sum.MarkersDropped)
	assert.True(t, exists(env.remoteDir, "v.txt.deleted"))
	assert.False(t, exists(env.localDir, "v.txt.deleted"))
	assert.Equal(t, "2", remoteVersion(t, env))

	// The remote-only marker left behind is not acted on again.
	sum = env.run(t, true)
	assert.Zero(t, sum.Uploads+sum.Downloads+sum.RemoteDeletes+sum.LocalDeletes)
	assert.Equal(t, "2", remoteVersion(t, env))
}

func TestSyncKeepMarkersLeavesLocalOnlyMarker(t *testing.T) {
	env := newTestEnv(t, true, nil)
	writeAt(t, env.localDir, "v.txt.deleted", "x", time.Unix(500, 0))

	sum := env.run(t, false)

	assert.Zero(t, sum.Uploads)
	assert.False(t, sum.VersionBumped)
	assert.True(t, exists(env.localDir, "v.txt.deleted"))
	assert.False(t, exists(env.remoteDir, "v.txt.deleted"))
	assert.Equal(t, "1", remoteVersion(t, env))
}

func TestSyncFileAgainstRemoteMarker(t *testing.T) {
	tests := []struct {
		name         string
		fileAt       int64
		markerAt     int64
		fileSurvives bool
	}{
		{name: "file newer", fileAt: 200, markerAt: 100, fileSurvives: true},
		{name: "marker newer", fileAt: 100, markerAt: 200},
		{name: "tie goes to marker", fileAt: 150, markerAt: 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false, nil)
			writeAt(t, env.localDir, "p.txt", "body", time.Unix(tt.fileAt, 0))
			writeAt(t, env.remoteDir, "p.txt.deleted", "m", time.Unix(tt.markerAt, 0))

			sum := env.run(t, false)

			if tt.fileSurvives {
				assert.True(t, exists(env.localDir, "p.txt"))
				assert.True(t, exists(env.remoteDir, "p.txt"))
				assert.False(t, exists(env.remoteDir, "p.txt.deleted"))
				assert.Equal(t, "2", remoteVersion(t, env))
				return
			}
			assert.Equal(t, 1, sum.LocalDeletes)
			assert.False(t, exists(env.localDir, "p.txt"))
			assert.True(t, exists(env.remoteDir, "p.txt.deleted"))
			assert.False(t, sum.VersionBumped)
			assert.Equal(t, []string{"p.txt"}, env.obs.removed)
		})
	}
}

func TestSyncMarkerAgainstRemoteFile(t *testing.T) {
	tests := []struct {
		name         string
		markerAt     int64
		fileAt       int64
		fileSurvives bool
	}{
		{name: "file newer", markerAt: 100, fileAt: 200, fileSurvives: true},
		{name: "marker newer", markerAt: 200, fileAt: 100},
		{name: "tie goes to marker", markerAt: 150, fileAt: 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false, nil)
			writeAt(t, env.localDir, "p.txt.deleted", "m", time.Unix(tt.markerAt, 0))
			writeAt(t, env.remoteDir, "p.txt", "remote body", time.Unix(tt.fileAt, 0))

			sum := env.run(t, false)

			if tt.fileSurvives {
				assert.Equal(t, 1, sum.Downloads)
				assert.Equal(t, "remote body", readAt(t, env.localDir, "p.txt"))
				assert.False(t, exists(env.localDir, "p.txt.deleted"))
				assert.Equal(t, tt.fileAt, mtime(t, env.localDir, "p.txt"))
				assert.Equal(t, "remote body", env.obs.downloaded["p.txt"])
				assert.False(t, sum.VersionBumped)
				return
			}
			assert.Equal(t, 1, sum.RemoteDeletes)
			assert.False(t, exists(env.remoteDir, "p.txt"))
			assert.True(t, exists(env.remoteDir, "p.txt.deleted"))
			assert.False(t, exists(env.localDir, "p.txt.deleted"))
			assert.Equal(t, "2", remoteVersion(t, env))
		})
	}
}

func TestSyncFileAgainstFile(t *testing.T) {
	tests := []struct {
		name       string
		localAt    int64
		localBody  string
		remoteAt   int64
		remoteBody string
		want       string
		bumped     bool
	}{
		{name: "local newer", localAt: 200, localBody: "local", remoteAt: 100, remoteBody: "remote", want: "local", bumped: true},
		{name: "remote newer", localAt: 100, localBody: "local", remoteAt: 200, remoteBody: "remote", want: "remote"},
		{name: "same time same size", localAt: 100, localBody: "aaaa", remoteAt: 100, remoteBody: "bbbb", want: "aaaa"},
		{name: "same time different size", localAt: 100, localBody: "longer", remoteAt: 100, remoteBody: "short", want: "longer", bumped: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false, nil)
			writeAt(t, env.localDir, "f.txt", tt.localBody, time.Unix(tt.localAt, 0))
			writeAt(t, env.remoteDir, "f.txt", tt.remoteBody, time.Unix(tt.remoteAt, 0))

			sum := env.run(t, false)

			assert.Equal(t, tt.want, readAt(t, env.localDir, "f.txt"))
			assert.Equal(t, tt.bumped, sum.VersionBumped)
			if tt.want != "aaaa" {
				assert.Equal(t, tt.want, readAt(t, env.remoteDir, "f.txt"))
			}
		})
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	for _, keep := range []bool{false, true} {
		env := newTestEnv(t, keep, nil)
		writeAt(t, env.localDir, "a.txt", "a", time.Unix(100, 0))
		writeAt(t, env.localDir, "dir/b.txt", "b-local", time.Unix(300, 0))
		writeAt(t, env.localDir, "gone.txt.deleted", "m", time.Unix(400, 0))
		writeAt(t, env.localDir, "c.txt", "c", time.Unix(100, 0))
		writeAt(t, env.remoteDir, "dir/b.txt", "b-remote", time.Unix(200, 0))
		writeAt(t, env.remoteDir, "gone.txt", "old", time.Unix(100, 0))
		writeAt(t, env.remoteDir, "r.txt", "r", time.Unix(100, 0))
		writeAt(t, env.remoteDir, "c.txt.deleted", "m", time.Unix(150, 0))

		first := env.run(t, false)
		require.True(t, first.VersionBumped)
		version := remoteVersion(t, env)

		second := env.run(t, true)
		assert.False(t, second.Skipped)
		assert.Zero(t, second.Uploads, "keep=%v", keep)
		assert.Zero(t, second.Downloads, "keep=%v", keep)
		assert.Zero(t, second.RemoteDeletes, "keep=%v", keep)
		assert.Zero(t, second.LocalDeletes, "keep=%v", keep)
		assert.Zero(t, second.MarkersDropped, "keep=%v", keep)
		assert.False(t, second.VersionBumped)
		assert.Equal(t, version, remoteVersion(t, env))
	}
}

func TestSyncSkipsWhenNothingChanged(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false, nil)
	writeAt(t, env.localDir, "a.txt", "a", time.Unix(100, 0))

	first := env.run(t, false)
	require.False(t, first.Skipped)

	assert.True(t, env.run(t, false).Skipped)

	require.NoError(t, env.state.MarkDirty(ctx))
	assert.False(t, env.run(t, false).Skipped)
	assert.True(t, env.run(t, false).Skipped)

	writeAt(t, env.remoteDir, VersionFile, "9\n", time.Now())
	sum := env.run(t, false)
	assert.False(t, sum.Skipped)
	assert.Equal(t, 9, sum.RemoteVersion)
	assert.True(t, env.run(t, false).Skipped)
}

func TestSyncDownloadDoesNotBumpVersion(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false, nil)
	writeAt(t, env.remoteDir, VersionFile, "4\n", time.Now())
	writeAt(t, env.remoteDir, "only/remote.txt", "r", time.Unix(100, 0))

	sum := env.run(t, false)

	assert.Equal(t, 1, sum.Downloads)
	assert.False(t, sum.VersionBumped)
	assert.Equal(t, "4", remoteVersion(t, env))
	cached, ok, err := env.state.CachedVersion(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, cached)
}

func TestSyncResolvesSameSideConflicts(t *testing.T) {
	env := newTestEnv(t, false, nil)
	writeAt(t, env.localDir, "a.txt", "body", time.Unix(200, 0))
	writeAt(t, env.localDir, "a.txt.deleted", "m", time.Unix(100, 0))
	writeAt(t, env.remoteDir, "b.txt", "body", time.Unix(100, 0))
	writeAt(t, env.remoteDir, "b.txt.deleted", "m", time.Unix(100, 0))

	sum := env.run(t, false)

	assert.Equal(t, 2, sum.Conflicts)
	assert.False(t, exists(env.localDir, "a.txt.deleted"))
	assert.True(t, exists(env.remoteDir, "a.txt"))
	assert.False(t, exists(env.remoteDir, "b.txt"))
	assert.True(t, exists(env.remoteDir, "b.txt.deleted"))
	assert.False(t, exists(env.localDir, "b.txt"))
}

func TestSyncLockTimeout(t *testing.T) {
	env := newTestEnv(t, false, nil)
	writeAt(t, env.localDir, "a.txt", "a", time.Unix(100, 0))
	writeAt(t, env.remoteDir, LockFile,
		`{"timestamp":"`+time.Now().UTC().Format(time.RFC3339Nano)+`","pid":1,"host":"other","owner":"someone-else"}`,
		time.Now())

	_, err := env.engine.Run(context.Background(), RunOptions{})

	require.ErrorIs(t, err, ErrSyncLockTimeout)
	assert.True(t, exists(env.remoteDir, LockFile))
	assert.False(t, exists(env.remoteDir, "a.txt"))
	assert.Equal(t, PhaseIdle, env.engine.Phase())
}

func TestSyncTakesOverStaleLock(t *testing.T) {
	env := newTestEnv(t, false, nil)
	writeAt(t, env.localDir, "a.txt", "a", time.Unix(100, 0))
	old := time.Now().Add(-time.Hour).UTC()
	writeAt(t, env.remoteDir, LockFile,
		`{"timestamp":"`+old.Format(time.RFC3339Nano)+`","pid":1,"host":"other","owner":"crashed"}`,
		old)

	sum := env.run(t, false)

	assert.Equal(t, 1, sum.Uploads)
	assert.False(t, exists(env.remoteDir, LockFile))
}

type failingWrites struct {
	replica.FS
	name string
}

func (f failingWrites) Write(ctx context.Context, name string, data []byte) error {
	if name == f.name {
		return errors.New("disk full")
	}
	return f.FS.Write(ctx, name, data)
}

func TestSyncAbortsOnFailureAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false, func(fs replica.FS) replica.FS {
		return failingWrites{FS: fs, name: "b.txt"}
	})
	writeAt(t, env.localDir, "a.txt", "a", time.Unix(100, 0))
	writeAt(t, env.localDir, "b.txt", "b", time.Unix(100, 0))
	writeAt(t, env.localDir, "c.txt", "c", time.Unix(100, 0))
	require.NoError(t, env.state.MarkDirty(ctx))

	sum, err := env.engine.Run(ctx, RunOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.txt")
	assert.Equal(t, 1, sum.Uploads)
	assert.True(t, exists(env.remoteDir, "a.txt"))
	assert.False(t, exists(env.remoteDir, "c.txt"))
	assert.False(t, exists(env.remoteDir, LockFile))
	assert.Equal(t, "1", remoteVersion(t, env))

	dirty, err := env.state.Dirty(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestSyncObserverFailureLeavesLocalTree(t *testing.T) {
	env := newTestEnv(t, false, nil)
	env.obs.failOn = "r.txt"
	writeAt(t, env.remoteDir, "r.txt", "r", time.Unix(100, 0))

	_, err := env.engine.Run(context.Background(), RunOptions{})

	require.Error(t, err)
	assert.False(t, exists(env.localDir, "r.txt"))

	env.obs.failOn = ""
	sum := env.run(t, false)
	assert.Equal(t, 1, sum.Downloads)
	assert.True(t, exists(env.localDir, "r.txt"))
}

func TestSyncApplyDeletionKeepsAlignedMarker(t *testing.T) {
	env := newTestEnv(t, true, nil)
	writeAt(t, env.localDir, "p.txt", "body", time.Unix(100, 0))
	writeAt(t, env.remoteDir, "p.txt.deleted", "m", time.Unix(300, 0))

	sum := env.run(t, false)

	assert.Equal(t, 1, sum.LocalDeletes)
	assert.False(t, exists(env.localDir, "p.txt"))
	require.True(t, exists(env.localDir, "p.txt.deleted"))
	assert.Equal(t, int64(300), mtime(t, env.localDir, "p.txt.deleted"))
}

func TestSyncCancelledBeforeLock(t *testing.T) {
	env := newTestEnv(t, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.engine.Run(ctx, RunOptions{})

	require.Error(t, err)
	assert.False(t, exists(env.remoteDir, LockFile))
}

type failFirstWrite struct {
	replica.FS
	name   string
	failed atomic.Bool
}

func (f *failFirstWrite) Write(ctx context.Context, name string, data []byte) error {
	if name == f.name && f.failed.CompareAndSwap(false, true) {
		return errors.New("connection reset")
	}
	return f.FS.Write(ctx, name, data)
}

func TestSyncBumpsVersionAfterInterruptedPush(t *testing.T) {
	ctx := context.Background()
	a := newTestEnv(t, false, func(fs replica.FS) replica.FS {
		return &failFirstWrite{FS: fs, name: VersionFile}
	})
	writeAt(t, a.remoteDir, VersionFile, "1\n", time.Now())
	b := a.peer(t)
	require.Zero(t, b.run(t, false).Downloads)

	writeAt(t, a.localDir, "a.txt", "from a", time.Unix(100, 0))
	require.NoError(t, a.state.MarkDirty(ctx))
	_, err := a.engine.Run(ctx, RunOptions{})
	require.Error(t, err)
	assert.True(t, exists(a.remoteDir, "a.txt"))
	assert.Equal(t, "1", remoteVersion(t, a))

	pending, err := a.state.PendingBump(ctx)
	require.NoError(t, err)
	assert.True(t, pending)

	retry := a.run(t, false)
	assert.Zero(t, retry.Uploads)
	assert.True(t, retry.VersionBumped)
	assert.Equal(t, 2, retry.RemoteVersion)
	pending, err = a.state.PendingBump(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
	assert.True(t, a.run(t, false).Skipped)

	sum := b.run(t, false)
	assert.False(t, sum.Skipped)
	assert.Equal(t, 1, sum.Downloads)
	assert.Equal(t, "from a", readAt(t, b.localDir, "a.txt"))
}

type cancelAfterWrite struct {
	replica.FS
	name   string
	cancel context.CancelFunc
}

func (c cancelAfterWrite) Write(ctx context.Context, name string, data []byte) error {
	err := c.FS.Write(ctx, name, data)
	if name == c.name {
		c.cancel()
	}
	return err
}

func TestSyncRunsToEndWhenCancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newTestEnv(t, false, func(fs replica.FS) replica.FS {
		return cancelAfterWrite{FS: fs, name: "a.txt", cancel: cancel}
	})
	writeAt(t, env.localDir, "a.txt", "a", time.Unix(100, 0))
	writeAt(t, env.localDir, "b.txt", "b", time.Unix(100, 0))

	sum, err := env.engine.Run(ctx, RunOptions{})

	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.Equal(t, 2, sum.Uploads)
	assert.True(t, exists(env.remoteDir, "b.txt"))
	assert.True(t, sum.VersionBumped)
	assert.Equal(t, "2", remoteVersion(t, env))
	assert.False(t, exists(env.remoteDir, LockFile))
}

// takeLockAfterWrite hands the remote lock to another owner as soon as
// name has been written.
type takeLockAfterWrite struct {
	replica.FS
	name string
}

func (s takeLockAfterWrite) Write(ctx context.Context, name string, data []byte) error {
	if err := s.FS.Write(ctx, name, data); err != nil {
		return err
	}
	if name != s.name {
		return nil
	}
	body := `{"timestamp":"` + time.Now().UTC().Format(time.RFC3339Nano) + `","pid":2,"host":"other","owner":"usurper"}`
	return s.FS.Write(ctx, LockFile, []byte(body))
}

func TestSyncStopsBeforeBumpWhenLockTakenOver(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false, func(fs replica.FS) replica.FS {
		return takeLockAfterWrite{FS: fs, name: "a.txt"}
	})
	writeAt(t, env.localDir, "a.txt", "a", time.Unix(100, 0))

	sum, err := env.engine.Run(ctx, RunOptions{})

	require.ErrorIs(t, err, ErrSyncLockLost)
	assert.Equal(t, 1, sum.Uploads)
	assert.False(t, sum.VersionBumped)
	assert.Equal(t, "1", remoteVersion(t, env))
	assert.Contains(t, readAt(t, env.remoteDir, LockFile), "usurper")

	// Once the other owner is gone the pushed change still gets its bump.
	require.NoError(t, os.Remove(filepath.Join(env.remoteDir, LockFile)))
	retry := env.run(t, false)
	assert.True(t, retry.VersionBumped)
	assert.Equal(t, "2", remoteVersion(t, env))
}

func TestSyncLockOptionsReachRemoteLock(t *testing.T) {
	clock := &fakeClock{now: time.Now().Add(time.Hour)}
	env := newTestEnv(t, false, nil, WithRemoteLockOptions(WithLockClock(clock.Now)))
	writeAt(t, env.localDir, "a.txt", "a", time.Unix(100, 0))
	// Fresh by the wall clock, an hour old by the lock's clock.
	writeAt(t, env.remoteDir, LockFile,
		`{"timestamp":"`+time.Now().UTC().Format(time.RFC3339Nano)+`","pid":1,"host":"other","owner":"crashed"}`,
		time.Now())

	sum := env.run(t, false)

	assert.Equal(t, 1, sum.Uploads)
}

func TestSyncObserverWrapsTreeChanges(t *testing.T) {
	env := newTestEnv(t, false, nil)
	writeAt(t, env.remoteDir, "r.txt", "remote", time.Unix(300, 0))
	writeAt(t, env.localDir, "gone.txt", "old", time.Unix(100, 0))
	writeAt(t, env.remoteDir, "gone.txt.deleted", "m", time.Unix(200, 0))

	present := map[string]bool{}
	env.obs.afterChange = func(path string) {
		present[path] = exists(env.localDir, path)
	}

	sum := env.run(t, false)

	assert.Equal(t, 1, sum.Downloads)
	assert.Equal(t, 1, sum.LocalDeletes)
	assert.Equal(t, map[string]bool{"r.txt": true, "gone.txt": false}, present)
	assert.Equal(t, int64(300), mtime(t, env.localDir, "r.txt"))
}

func TestSyncRemoteMarkerReachesOtherClients(t *testing.T) {
	a := newTestEnv(t, false, nil)
	writeAt(t, a.remoteDir, "p.txt.deleted", "m", time.Unix(200, 0))
	b := a.peer(t)
	writeAt(t, b.localDir, "p.txt", "stale", time.Unix(100, 0))

	sum := a.run(t, false)
	assert.False(t, sum.VersionBumped)
	assert.False(t, exists(a.localDir, "p.txt.deleted"))
	require.True(t, exists(a.remoteDir, "p.txt.deleted"))

	sum = b.run(t, false)
	assert.Equal(t, 1, sum.LocalDeletes)
	assert.False(t, exists(b.localDir, "p.txt"))
}
