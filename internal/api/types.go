package api

import (
	"time"

	"docvault/internal/gc"
	"docvault/internal/locks"
	"docvault/internal/models"
	"docvault/internal/session"
	"docvault/internal/storage"
	"docvault/internal/syncer"
)

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// FileListResponse is returned by GET /v1/files.
type FileListResponse struct {
	Files []models.Document `json:"files"`
}

// LockRequest names the path for acquire, release and heartbeat.
type LockRequest struct {
	Path string `json:"path"`
}

// LockAcquireResponse reports whether the caller now holds the lock.
type LockAcquireResponse struct {
	Path     string `json:"path"`
	Acquired bool   `json:"acquired"`
	Owner    string `json:"owner,omitempty"`
}

// LockReleaseResponse reports what a release did.
type LockReleaseResponse struct {
	Path   string              `json:"path"`
	Result locks.ReleaseResult `json:"result"`
}

// LockListResponse maps locked paths to the owning session.
type LockListResponse struct {
	Locks map[string]string `json:"locks"`
}

// LockPurgeResponse counts purged stale locks.
type LockPurgeResponse struct {
	Purged int `json:"purged"`
}

// SessionCreateRequest opens an editing session.
type SessionCreateRequest struct {
	User string `json:"user"`
}

// SessionCreateResponse carries the one-time plaintext token.
type SessionCreateResponse = session.Created

// SessionEndResponse reports how many locks ending the session released.
type SessionEndResponse struct {
	ID            string `json:"id"`
	LocksReleased int    `json:"locks_released"`
}

// SyncResponse is the summary of one sync run.
type SyncResponse = syncer.Summary

// GCResponse is returned by POST /v1/admin/gc. Plan is set on dry runs,
// Report otherwise.
type GCResponse struct {
	DryRun bool       `json:"dry_run"`
	Plan   *gc.Plan   `json:"plan,omitempty"`
	Report *gc.Report `json:"report,omitempty"`
}

// InfoResponse describes the running vault.
type InfoResponse struct {
	*storage.Info
	ServerTime time.Time `json:"server_time"`
}
