// Package syncer reconciles the local document tree with a remote replica.
// A run compares the remote version counter with the one cached locally,
// takes the remote lock, scans both sides, applies one action per path and
// bumps the counter when it pushed anything. Once the remote lock is held a
// run ignores cancellation and goes to the end.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docvault/internal/metrics"
	"docvault/internal/models"
	"docvault/internal/replica"
)

// DefaultLockTimeout bounds how long a run waits for the remote lock.
const DefaultLockTimeout = 2 * time.Minute

// Phase is the step a run is in.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseCheckingVersions Phase = "checking-versions"
	PhaseAcquiringLock    Phase = "acquiring-remote-lock"
	PhaseScanning         Phase = "scanning"
	PhaseReconciling      Phase = "reconciling"
	PhaseIncrementing     Phase = "incrementing-version"
)

// LocalObserver is told about changes a run makes to the local tree so
// that local bookkeeping follows. Each method gets the tree change as a
// func and must call it once, after its own bookkeeping, returning its
// error; this lets the observer hold its locks across both. An error
// before the call aborts the run with the tree untouched for that path.
type LocalObserver interface {
	Downloaded(ctx context.Context, path string, content []byte, write func() error) error
	RemovedLocal(ctx context.Context, path string, remove func() error) error
}

// Config holds the sync settings.
type Config struct {
	KeepDeletedMarkers bool
	LockTimeout        time.Duration
	LockPollInterval   time.Duration
	LockStaleAfter     time.Duration
}

// RunOptions modify a single run.
type RunOptions struct {
	// Force skips the fast path and reconciles even when nothing changed.
	Force bool
}

// Summary describes what a run did.
type Summary struct {
	Skipped        bool          `json:"skipped"`
	Uploads        int           `json:"uploads"`
	Downloads      int           `json:"downloads"`
	RemoteDeletes  int           `json:"remote_deletes"`
	LocalDeletes   int           `json:"local_deletes"`
	MarkersDropped int           `json:"markers_dropped"`
	Conflicts      int           `json:"conflicts"`
	RemoteVersion  int           `json:"remote_version"`
	VersionBumped  bool          `json:"version_bumped"`
	Duration       time.Duration `json:"duration_ns"`
}

func (s Summary) pushed() bool {
	return s.Uploads > 0 || s.RemoteDeletes > 0
}

// Engine runs syncs between one local and one remote replica. Runs on one
// engine are serialized.
type Engine struct {
	local    replica.FS
	remote   replica.FS
	state    *LocalState
	version  *VersionCounter
	lock     *RemoteLock
	observer LocalObserver
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	lockOpts []RemoteLockOption

	runMu   sync.Mutex
	phaseMu sync.Mutex
	phase   Phase
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers the local bookkeeping hook.
func WithObserver(o LocalObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records runs and actions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRemoteLockOptions passes extra options to the remote lock, after the
// ones derived from Config.
func WithRemoteLockOptions(opts ...RemoteLockOption) Option {
	return func(e *Engine) { e.lockOpts = append(e.lockOpts, opts...) }
}

// NewEngine creates an engine. The remote should already be wrapped for
// retries if that is wanted.
func NewEngine(local, remote replica.FS, state *LocalState, cfg Config, opts ...Option) *Engine {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	e := &Engine{
		local:   local,
		remote:  remote,
		state:   state,
		version: NewVersionCounter(remote),
		cfg:     cfg,
		logger:  slog.Default(),
		phase:   PhaseIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "sync")
	lockOpts := append([]RemoteLockOption{
		WithPollInterval(cfg.LockPollInterval),
		WithStaleAfter(cfg.LockStaleAfter),
		WithLockLogger(e.logger),
	}, e.lockOpts...)
	e.lock = NewRemoteLock(remote, lockOpts...)
	return e
}

// Phase returns the step the current run is in.
func (e *Engine) Phase() Phase {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.phaseMu.Lock()
	e.phase = p
	e.phaseMu.Unlock()
}

// Version returns the remote counter.
func (e *Engine) Version(ctx context.Context) (int, error) {
	return e.version.Get(ctx)
}

// Run performs one sync. On error the partial summary is returned along
// with it; the dirty flag and cached version are left as they were. A run
// that changed the remote but failed before bumping the version leaves a
// pending flag, and the next successful run bumps it.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (summary Summary, err error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	start := time.Now()
	defer func() {
		e.setPhase(PhaseIdle)
		summary.Duration = time.Since(start)
		result := "ok"
		switch {
		case err != nil:
			result = "error"
		case summary.Skipped:
			result = "skipped"
		}
		e.metrics.RecordSyncRun(result, summary.Duration)
	}()

	e.setPhase(PhaseCheckingVersions)
	remoteVersion, err := e.version.Get(ctx)
	if err != nil {
		return summary, err
	}
	summary.RemoteVersion = remoteVersion
	e.metrics.SetRemoteVersion(remoteVersion)

	cached, haveCached, err := e.state.CachedVersion(ctx)
	if err != nil {
		return summary, err
	}
	dirtyToken, err := e.state.DirtyToken(ctx)
	if err != nil {
		return summary, err
	}
	pendingBump, err := e.state.PendingBump(ctx)
	if err != nil {
		return summary, err
	}
	if !opts.Force && !pendingBump && dirtyToken == "" && haveCached && cached == remoteVersion {
		e.logger.Debug("sync skipped", "version", remoteVersion)
		summary.Skipped = true
		return summary, nil
	}

	e.setPhase(PhaseAcquiringLock)
	ok, err := e.lock.Acquire(ctx, e.cfg.LockTimeout)
	if err != nil {
		return summary, err
	}
	if !ok {
		return summary, ErrSyncLockTimeout
	}
	ctx = context.WithoutCancel(ctx)
	defer e.lock.Release(ctx)
	stopKeepAlive := e.lock.KeepAlive(ctx)
	defer stopKeepAlive()

	e.setPhase(PhaseScanning)
	local, remote, conflicts, err := e.scanBoth(ctx)
	if err != nil {
		return summary, err
	}
	summary.Conflicts = conflicts

	e.setPhase(PhaseReconciling)
	for _, p := range unionPaths(local, remote) {
		l, r := lookup(local, p), lookup(remote, p)
		a := Decide(l, r, e.cfg.KeepDeletedMarkers)
		if a.Kind == ActionNone {
			continue
		}
		if a.SizeMismatch {
			e.logger.Warn("same mtime but different size, keeping local copy",
				"path", p, "local_size", l.Size, "remote_size", r.Size)
		}
		if a.pushes() && !pendingBump {
			if err := e.state.MarkPendingBump(ctx); err != nil {
				return summary, err
			}
			pendingBump = true
		}
		if err := e.apply(ctx, a, l, r, &summary); err != nil {
			return summary, fmt.Errorf("sync %s (%s): %w", p, a.Kind, err)
		}
		e.metrics.RecordSyncAction(string(a.Kind))
		e.logger.Debug("sync action", "path", p, "action", a.Kind)
	}

	e.setPhase(PhaseIncrementing)
	if summary.pushed() || pendingBump {
		if !summary.pushed() {
			e.logger.Info("bumping version for changes pushed by an earlier run")
		}
		if err := e.lock.Confirm(ctx); err != nil {
			return summary, err
		}
		if summary.RemoteVersion, err = e.version.Increment(ctx); err != nil {
			return summary, err
		}
		summary.VersionBumped = true
		if err := e.state.ClearPendingBump(ctx); err != nil {
			return summary, err
		}
	} else if summary.RemoteVersion, err = e.version.Get(ctx); err != nil {
		return summary, err
	}
	e.metrics.SetRemoteVersion(summary.RemoteVersion)

	if err := e.state.SetCachedVersion(ctx, summary.RemoteVersion); err != nil {
		return summary, err
	}
	if err := e.state.ClearDirty(ctx, dirtyToken); err != nil {
		return summary, err
	}

	e.logger.Info("sync finished",
		"version", summary.RemoteVersion,
		"uploads", summary.Uploads,
		"downloads", summary.Downloads,
		"remote_deletes", summary.RemoteDeletes,
		"local_deletes", summary.LocalDeletes,
		"conflicts", summary.Conflicts,
	)
	return summary, nil
}

func (e *Engine) scanBoth(ctx context.Context) (Snapshot, Snapshot, int, error) {
	var (
		local, remote Snapshot
		lConf, rConf  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s := scanner{fs: e.local, side: "local", logger: e.logger}
		if e.observer != nil {
			s.onDiscard = e.observer.RemovedLocal
		}
		var err error
		local, lConf, err = s.scan(gctx)
		return err
	})
	g.Go(func() error {
		s := scanner{fs: e.remote, side: "remote", exclude: remoteExcluded, logger: e.logger}
		var err error
		remote, rConf, err = s.scan(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, 0, err
	}
	return local, remote, lConf + rConf, nil
}

func (e *Engine) apply(ctx context.Context, a Action, local, remote *models.FileRecord, sum *Summary) error {
	marker := replica.MarkerName(a.Path)

	switch a.Kind {
	case ActionUpload:
		data, err := e.local.Read(ctx, a.Path)
		if err != nil {
			return err
		}
		if err := e.remote.Write(ctx, a.Path, data); err != nil {
			return err
		}
		sum.Uploads++
		if remote != nil && remote.Deleted {
			if err := e.remote.Remove(ctx, marker); err != nil {
				return structural("remove", marker, err)
			}
			sum.RemoteDeletes++
		}
		return e.alignLocal(ctx, a.Path)

	case ActionDownload:
		data, err := e.remote.Read(ctx, a.Path)
		if err != nil {
			return structural("read", a.Path, err)
		}
		write := func() error {
			if err := e.local.Write(ctx, a.Path, data); err != nil {
				return err
			}
			if err := e.local.SetModTime(ctx, a.Path, remote.ModTime); err != nil {
				return err
			}
			if local != nil && local.Deleted {
				if err := e.local.Remove(ctx, marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			return nil
		}
		if e.observer != nil {
			err = e.observer.Downloaded(ctx, a.Path, data, write)
		} else {
			err = write()
		}
		if err != nil {
			return err
		}
		sum.Downloads++
		return nil

	case ActionPushDeletion:
		data, err := e.local.Read(ctx, marker)
		if err != nil {
			return err
		}
		if remote != nil && !remote.Deleted {
			if err := e.remote.Remove(ctx, a.Path); err != nil {
				return structural("remove", a.Path, err)
			}
			sum.RemoteDeletes++
		}
		if err := e.remote.Write(ctx, marker, data); err != nil {
			return err
		}
		sum.Uploads++
		if e.cfg.KeepDeletedMarkers {
			return e.alignLocal(ctx, marker)
		}
		if err := e.local.Remove(ctx, marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		sum.MarkersDropped++
		return nil

	case ActionApplyDeletion:
		remove := func() error {
			if err := e.local.Remove(ctx, a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		}
		var err error
		if e.observer != nil {
			err = e.observer.RemovedLocal(ctx, a.Path, remove)
		} else {
			err = remove()
		}
		if err != nil {
			return err
		}
		sum.LocalDeletes++
		if !e.cfg.KeepDeletedMarkers {
			return nil
		}
		if err := e.local.Write(ctx, marker, replica.MarkerContent(remote.ModTime)); err != nil {
			return err
		}
		return e.local.SetModTime(ctx, marker, remote.ModTime)

	case ActionDropMarker:
		if err := e.local.Remove(ctx, marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		sum.MarkersDropped++
		return nil
	}
	return fmt.Errorf("unknown action %q", a.Kind)
}

// alignLocal copies the remote mtime of name onto the local copy so the
// next comparison sees them as equal.
func (e *Engine) alignLocal(ctx context.Context, name string) error {
	entry, err := e.remote.Stat(ctx, name)
	if err != nil {
		return structural("stat", name, err)
	}
	return e.local.SetModTime(ctx, name, entry.ModTime)
}

// structural turns a missing remote path into a StructuralError.
func structural(op, name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &StructuralError{Op: op, Path: name, Err: err}
	}
	return err
}

func unionPaths(a, b Snapshot) []string {
	paths := make([]string, 0, len(a)+len(b))
	for p := range a {
		paths = append(paths, p)
	}
	for p := range b {
		if _, ok := a[p]; !ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

func lookup(s Snapshot, path string) *models.FileRecord {
	rec, ok := s[path]
	if !ok {
		return nil
	}
	return &rec
}
