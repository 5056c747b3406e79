package models

import "time"

// Lock is the persisted mutual-exclusion record for one logical path.
type Lock struct {
	Path       string    `json:"path"`
	SessionID  string    `json:"session_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsStale reports whether the lock has not been refreshed within timeout.
func (l Lock) IsStale(now time.Time, timeout time.Duration) bool {
	return now.Sub(l.UpdatedAt) > timeout
}

// LockOutcome describes what an acquire attempt did.
type LockOutcome string

const (
	LockAcquired  LockOutcome = "acquired"
	LockRefreshed LockOutcome = "refreshed"
	LockTakenOver LockOutcome = "taken_over"
	LockConflict  LockOutcome = "conflict"
)

// Granted reports whether the caller holds the lock after the attempt.
func (o LockOutcome) Granted() bool {
	return o == LockAcquired || o == LockRefreshed || o == LockTakenOver
}
