// Package replica abstracts one copy of the document tree: the local
// working tree or the remote store. Names are slash-separated, relative to
// the replica root, and carry the on-disk deletion marker suffix.
package replica

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"docvault/internal/models"
)

// MarkerSuffix names a tombstone on disk and on the wire.
const MarkerSuffix = models.DeletionMarkerSuffix

// ErrModTimeUnsupported is returned by replicas that cannot set mtimes.
var ErrModTimeUnsupported = errors.New("replica cannot set modification times")

// Entry is one regular file found on a replica.
type Entry struct {
	Name    string
	ModTime time.Time
	Size    int64
}

// FS is the file surface the sync engine needs from a replica. Missing
// files are reported with errors matching fs.ErrNotExist.
type FS interface {
	List(ctx context.Context) ([]Entry, error)
	Stat(ctx context.Context, name string) (Entry, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Remove(ctx context.Context, name string) error
	SetModTime(ctx context.Context, name string, t time.Time) error
}

// MarkerName returns the tombstone file name for a logical path.
func MarkerName(logical string) string {
	return logical + MarkerSuffix
}

// SplitMarker maps a file name to its logical path and reports whether it
// is a tombstone.
func SplitMarker(name string) (string, bool) {
	if strings.HasSuffix(name, MarkerSuffix) && len(name) > len(MarkerSuffix) {
		return strings.TrimSuffix(name, MarkerSuffix), true
	}
	return name, false
}

// FileName returns the on-replica name of a record.
func FileName(rec models.FileRecord) string {
	if rec.Deleted {
		return MarkerName(rec.Path)
	}
	return rec.Path
}

// Record converts a listed entry into a FileRecord.
func Record(e Entry) models.FileRecord {
	logical, deleted := SplitMarker(e.Name)
	return models.FileRecord{Path: logical, ModTime: e.ModTime, Size: e.Size, Deleted: deleted}
}

// MarkerContent is the body written into tombstones.
func MarkerContent(at time.Time) []byte {
	return []byte(at.UTC().Format(time.RFC3339) + "\n")
}

func cleanName(name string) (string, error) {
	name = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
	if name == "" {
		return "", errors.New("empty replica path")
	}
	return name, nil
}
