package storage

import (
	"context"
	"fmt"

	"docvault/internal/blobstore"
	"docvault/internal/gc"
	"docvault/internal/locks"
	"docvault/internal/models"
	"docvault/internal/store"
	"docvault/internal/syncer"
)

// AcquireFileLock takes or refreshes the lock on path for sessionID. It
// never blocks; false means another live session holds it.
func (s *Service) AcquireFileLock(ctx context.Context, path, sessionID string) (bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	return s.locks.Acquire(ctx, p, sessionID)
}

// ReleaseFileLock releases path. Releasing a free lock is not an error;
// releasing someone else's is locks.ErrLockOwnership.
func (s *Service) ReleaseFileLock(ctx context.Context, path, sessionID string) (locks.ReleaseResult, error) {
	p, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	return s.locks.Release(ctx, p, sessionID)
}

// CheckFileLock reports who holds path.
func (s *Service) CheckFileLock(ctx context.Context, path, sessionID string) (locks.Status, error) {
	p, err := cleanPath(path)
	if err != nil {
		return locks.Status{}, err
	}
	return s.locks.Check(ctx, p, sessionID)
}

// HeartbeatFileLock keeps a held lock from going stale.
func (s *Service) HeartbeatFileLock(ctx context.Context, path, sessionID string) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	return s.locks.Heartbeat(ctx, p, sessionID)
}

// ActiveLocks maps locked paths to their owners, stale locks excluded.
func (s *Service) ActiveLocks(ctx context.Context) (map[string]string, error) {
	return s.locks.AllActive(ctx)
}

// PurgeStaleLocks deletes locks past their timeout.
func (s *Service) PurgeStaleLocks(ctx context.Context) (int, error) {
	return s.locks.PurgeStale(ctx)
}

// RunSync reconciles with the remote. Concurrent calls share one run. The
// run is detached from ctx: when ctx ends the caller stops waiting with
// ctx.Err() but the run goes on for whoever else joined it.
func (s *Service) RunSync(ctx context.Context, opts syncer.RunOptions) (syncer.Summary, error) {
	if s.engine == nil {
		return syncer.Summary{}, ErrSyncDisabled
	}
	key := "sync"
	if opts.Force {
		key = "sync-force"
	}
	runCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		return s.engine.Run(runCtx, opts)
	})
	select {
	case <-ctx.Done():
		s.logger.Debug("caller stopped waiting for sync", "err", ctx.Err())
		return syncer.Summary{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("joined running sync")
		}
		summary, _ := res.Val.(syncer.Summary)
		return summary, res.Err
	}
}

// SyncPhase returns the step a running sync is in.
func (s *Service) SyncPhase() syncer.Phase {
	if s.engine == nil {
		return syncer.PhaseIdle
	}
	return s.engine.Phase()
}

// RunGarbageCollection runs a full cleanup. Concurrent calls share one run.
func (s *Service) RunGarbageCollection(ctx context.Context) (gc.Report, error) {
	v, err, _ := s.flight.Do("gc", func() (any, error) {
		return s.gc.FullCleanup(ctx)
	})
	report, _ := v.(gc.Report)
	return report, err
}

// PlanGarbageCollection lists what RunGarbageCollection would delete.
func (s *Service) PlanGarbageCollection(ctx context.Context) (gc.Plan, error) {
	return s.gc.Plan(ctx)
}

// AuditRefs compares reference counts with the document records.
func (s *Service) AuditRefs(ctx context.Context) (*gc.AuditReport, error) {
	return s.gc.Audit(ctx)
}

// RepairRefs rewrites reference counts from the document records.
func (s *Service) RepairRefs(ctx context.Context) (*gc.AuditReport, error) {
	return s.gc.Repair(ctx)
}

// RebuildRefs rewrites reference counts from externally supplied records,
// such as an exported manifest.
func (s *Service) RebuildRefs(ctx context.Context, docs []models.Document) (*gc.AuditReport, error) {
	for i := range docs {
		if !models.ValidHash(docs[i].Hash) {
			return nil, fmt.Errorf("%w: record %d (%s) has an invalid hash", ErrInvalidPath, i, docs[i].Path)
		}
		kind, err := models.ParseKind(docs[i].Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d (%s): %v", ErrInvalidPath, i, docs[i].Path, err)
		}
		docs[i].Kind = kind
	}
	live := 0
	for _, d := range docs {
		if !d.Deleted {
			live++
		}
	}
	return s.gc.Apply(ctx, gc.RebuildFromAuthoritativeSource(docs), live)
}

// Info summarizes the state of the vault.
type Info struct {
	DataDir       string                         `json:"data_dir"`
	Store         *store.StoreInfo               `json:"store"`
	Blobs         map[string]blobstore.KindStats `json:"blobs"`
	SyncEnabled   bool                           `json:"sync_enabled"`
	SyncPhase     syncer.Phase                   `json:"sync_phase"`
	CachedVersion int                            `json:"cached_version,omitempty"`
	Dirty         bool                           `json:"dirty"`
}

// Info collects counts from the store, the blob tree and the sync state.
func (s *Service) Info(ctx context.Context) (*Info, error) {
	storeInfo, err := s.store.StoreInfo(ctx, s.locks.Timeout())
	if err != nil {
		return nil, err
	}
	blobs, err := s.blobs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	version, _, err := s.state.CachedVersion(ctx)
	if err != nil {
		return nil, err
	}
	dirty, err := s.state.Dirty(ctx)
	if err != nil {
		return nil, err
	}
	return &Info{
		DataDir:       s.cfg.DataDir,
		Store:         storeInfo,
		Blobs:         blobs,
		SyncEnabled:   s.engine != nil,
		SyncPhase:     s.SyncPhase(),
		CachedVersion: version,
		Dirty:         dirty,
	}, nil
}
