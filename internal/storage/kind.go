package storage

import (
	"fmt"
	"path"
	"strings"

	"docvault/internal/models"
	"docvault/internal/syncer"
)

// DefaultKind is used for files whose extension maps to nothing.
const DefaultKind = "bin"

var extensionKinds = map[string]string{
	".pdf":  "pdf",
	".xml":  "tei",
	".tei":  "tei",
	".json": "json",
	".txt":  "text",
	".md":   "text",
}

// KindForPath guesses a blob kind from the file extension.
func KindForPath(p string) string {
	if kind, ok := extensionKinds[strings.ToLower(path.Ext(p))]; ok {
		return kind
	}
	return DefaultKind
}

// cleanPath validates a logical path and rejects names the sync protocol
// keeps for itself.
func cleanPath(raw string) (string, error) {
	p, err := models.CleanPath(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if p == syncer.VersionFile || p == syncer.LockFile {
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidPath, p)
	}
	return p, nil
}

func resolveKind(p, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return KindForPath(p), nil
	}
	kind, err := models.ParseKind(strings.ToLower(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return kind, nil
}
