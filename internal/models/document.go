package models

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// DeletionMarkerSuffix is appended to a logical path to name its tombstone
// file on disk and on the remote. It is a naming convention only; in memory
// tombstones are FileRecord.Deleted.
const DeletionMarkerSuffix = ".deleted"

// Document is the authoritative logical record mapping a path to its content.
type Document struct {
	Path      string    `json:"path"`
	Hash      string    `json:"hash"`
	Kind      string    `json:"kind"`
	SizeBytes int64     `json:"size_bytes"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CleanPath normalizes a slash-separated logical document path.
func CleanPath(raw string) (string, error) {
	value := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	if value == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.HasPrefix(value, "/") {
		return "", fmt.Errorf("path must be relative")
	}
	clean := path.Clean(value)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid path: %q", raw)
	}
	if strings.HasSuffix(clean, DeletionMarkerSuffix) {
		return "", fmt.Errorf("path must not end with %s", DeletionMarkerSuffix)
	}
	return clean, nil
}
