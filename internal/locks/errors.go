package locks

import "errors"

var (
	// ErrLockConflict means another live session holds the path.
	ErrLockConflict = errors.New("file is locked by another session")
	// ErrLockOwnership means a session tried to release a lock it does not own.
	ErrLockOwnership = errors.New("lock is owned by another session")
	// ErrLockNotHeld means a heartbeat arrived for a lock the session does not hold.
	ErrLockNotHeld = errors.New("lock is not held by this session")
)
