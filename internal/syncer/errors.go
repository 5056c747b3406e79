package syncer

import (
	"errors"
	"fmt"
)

// ErrSyncLockTimeout means the remote sync lock could not be taken in time.
// Callers may retry later.
var ErrSyncLockTimeout = errors.New("timed out waiting for the remote sync lock")

// ErrSyncLockLost means another client took the remote sync lock while a run
// held it. The run stops before touching the version counter.
var ErrSyncLockLost = errors.New("remote sync lock was taken over by another client")

// StructuralError reports a remote path that was expected to exist but is
// missing, or remote metadata that cannot be parsed. It is not retried.
type StructuralError struct {
	Op   string
	Path string
	Err  error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// IsStructural reports whether err is a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
