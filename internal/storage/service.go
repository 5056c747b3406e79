// Package storage is the public API of docvault: it ties the content store,
// document records, reference counts, file locks, sessions, garbage
// collection and sync together.
package storage

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"docvault/internal/blobstore"
	"docvault/internal/gc"
	"docvault/internal/locks"
	"docvault/internal/metrics"
	"docvault/internal/replica"
	"docvault/internal/session"
	"docvault/internal/store"
	"docvault/internal/syncer"
)

const (
	DBFileName   = "docvault.db"
	blobsDir     = "blobs"
	documentsDir = "documents"
	stateDir     = "state"

	pathStripes = 64
)

// Config describes where the service keeps its data and how it syncs.
type Config struct {
	DataDir string
	// DBPath overrides <DataDir>/docvault.db.
	DBPath             string
	KeepDeletedMarkers bool
	LockTimeout        time.Duration
	SyncLockTimeout    time.Duration
	Remote             replica.RemoteConfig
	Retry              replica.RetryPolicy
}

// Service is safe for concurrent use.
type Service struct {
	cfg      Config
	store    *store.Store
	blobs    *blobstore.LocalCAS
	tree     *replica.BillyFS
	state    *syncer.LocalState
	locks    *locks.Manager
	sessions *session.Registry
	gc       *gc.Collector
	engine   *syncer.Engine
	logger   *slog.Logger
	metrics  *metrics.Metrics

	remote replica.FS
	flight singleflight.Group
	paths  [pathStripes]sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records operations.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = mt }
}

// WithRemote uses fs as the remote replica instead of opening
// Config.Remote. No retry wrapper is added.
func WithRemote(fs replica.FS) Option {
	return func(s *Service) { s.remote = fs }
}

// Open creates the data directories, opens the database and wires the
// components.
func Open(cfg Config, opts ...Option) (*Service, error) {
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = locks.DefaultTimeout
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, DBFileName)
	}

	s := &Service{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	for _, dir := range []string{cfg.DataDir, filepath.Dir(cfg.DBPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	var err error
	if s.blobs, err = blobstore.NewLocalCAS(filepath.Join(cfg.DataDir, blobsDir)); err != nil {
		return nil, err
	}
	if s.tree, err = replica.NewOSFS(filepath.Join(cfg.DataDir, documentsDir)); err != nil {
		return nil, err
	}
	if s.state, err = syncer.NewLocalState(filepath.Join(cfg.DataDir, stateDir)); err != nil {
		return nil, err
	}
	if s.store, err = store.Open(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s.locks = locks.NewManager(s.store,
		locks.WithTimeout(cfg.LockTimeout),
		locks.WithLogger(s.logger),
		locks.WithMetrics(s.metrics),
	)
	s.sessions = session.NewRegistry(s.store, s.logger)
	s.gc = gc.NewCollector(s.store, s.store, s.blobs, s.logger, s.metrics)

	if s.remote == nil && cfg.Remote.URL != "" {
		remote, err := replica.OpenRemote(cfg.Remote)
		if err != nil {
			_ = s.store.Close()
			return nil, err
		}
		s.remote = replica.WithRetry(remote, replica.NewRetrier(cfg.Retry, s.logger, s.metrics))
	}
	if s.remote != nil {
		s.engine = syncer.NewEngine(s.tree, s.remote, s.state, syncer.Config{
			KeepDeletedMarkers: cfg.KeepDeletedMarkers,
			LockTimeout:        cfg.SyncLockTimeout,
		},
			syncer.WithObserver(treeObserver{s: s}),
			syncer.WithLogger(s.logger),
			syncer.WithMetrics(s.metrics),
		)
	}

	s.logger.Debug("storage opened", "data_dir", cfg.DataDir, "db", cfg.DBPath, "sync", s.engine != nil)
	return s, nil
}

// Close releases the database.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	return s.store.Close()
}

// Store exposes the underlying store for migration tooling.
func (s *Service) Store() *store.Store {
	return s.store
}

// Locks returns the lock manager.
func (s *Service) Locks() *locks.Manager {
	return s.locks
}

// Sessions returns the session registry.
func (s *Service) Sessions() *session.Registry {
	return s.sessions
}

// SyncEnabled reports whether a remote is configured.
func (s *Service) SyncEnabled() bool {
	return s.engine != nil
}

// lockPath serializes writers of one logical path inside this process so
// that the document row and the tree file are updated together.
func (s *Service) lockPath(p string) func() {
	mu := s.pathMutex(p)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) pathMutex(p string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(p))
	return &s.paths[h.Sum32()%pathStripes]
}
