package store

import (
	"context"
	"time"

	"docvault/internal/models"
)

// RefStore abstracts the blob reference table.
type RefStore interface {
	IncrementRef(ctx context.Context, hash, kind string) (int, error)
	DecrementRef(ctx context.Context, hash, kind string) (int, bool, error)
	GetRef(ctx context.Context, hash, kind string) (*models.RefEntry, error)
	ListRefs(ctx context.Context) ([]models.RefEntry, error)
	ZeroRefEntries(ctx context.Context) ([]models.RefEntry, error)
	HasRef(ctx context.Context, hash, kind string) (bool, error)
	CollectZeroRef(ctx context.Context, hash, kind string, remove func() (bool, error)) (bool, error)
	CollectOrphan(ctx context.Context, hash, kind string, remove func() (bool, error)) (bool, error)
	ReplaceRefs(ctx context.Context, counts map[models.RefKey]int) error
}

// DocumentStore abstracts the logical document table. Every mutation
// adjusts blob references in the same transaction.
type DocumentStore interface {
	GetDocument(ctx context.Context, path string) (*models.Document, error)
	ListDocuments(ctx context.Context, includeDeleted bool) ([]models.Document, error)
	PutDocument(ctx context.Context, doc models.Document) (DocumentChange, error)
	MarkDocumentDeleted(ctx context.Context, path string, at time.Time) (DocumentChange, error)
	RestoreDocument(ctx context.Context, path string, prev *models.Document) (DocumentChange, error)
}

// LockStore abstracts the file lock table.
type LockStore interface {
	AcquireLock(ctx context.Context, path, sessionID string, now time.Time, timeout time.Duration) (LockAcquisition, error)
	ReleaseLock(ctx context.Context, path, sessionID string) (LockRelease, error)
	RefreshLock(ctx context.Context, path, sessionID string, now time.Time) (bool, error)
	GetLock(ctx context.Context, path string) (*models.Lock, error)
	ListLocks(ctx context.Context) ([]models.Lock, error)
	PurgeStaleLocks(ctx context.Context, now time.Time, timeout time.Duration) (int, error)
	DeleteSessionLocks(ctx context.Context, sessionID string) (int, error)
}

// SessionStore abstracts the session table.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) (bool, error)
	DeleteSession(ctx context.Context, id string) (SessionTeardown, error)
	ListSessions(ctx context.Context) ([]models.Session, error)
}

var (
	_ RefStore      = (*Store)(nil)
	_ DocumentStore = (*Store)(nil)
	_ LockStore     = (*Store)(nil)
	_ SessionStore  = (*Store)(nil)
)
