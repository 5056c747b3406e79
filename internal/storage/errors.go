package storage

import "errors"

var (
	// ErrNotFound means there is no live document at the path.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidPath wraps path and kind validation failures.
	ErrInvalidPath = errors.New("invalid document path")
	// ErrSyncDisabled is returned by RunSync when no remote is configured.
	ErrSyncDisabled = errors.New("sync is not configured: no remote url")
	// ErrBlobMissing means a live document points at content that is not
	// on disk.
	ErrBlobMissing = errors.New("document content is missing from the blob store")
)
