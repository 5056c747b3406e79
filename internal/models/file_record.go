package models

import "time"

// FileRecord is the scanned state of one logical path on one replica.
// Deleted marks a tombstone; Path never carries the marker suffix.
type FileRecord struct {
	Path    string
	ModTime time.Time
	Size    int64
	Deleted bool
}

// Unix returns the modification time at one-second resolution, the
// granularity at which replicas are compared.
func (r FileRecord) Unix() int64 {
	return r.ModTime.Unix()
}
