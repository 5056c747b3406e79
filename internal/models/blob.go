package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Blob is an immutable content object identified by the SHA-256 of its bytes.
type Blob struct {
	Hash      string `json:"hash"`
	Kind      string `json:"kind"`
	SizeBytes int64  `json:"size_bytes"`
}

// RefKey identifies one reference-counted blob.
type RefKey struct {
	Hash string `json:"hash"`
	Kind string `json:"kind"`
}

func (k RefKey) String() string {
	return k.Kind + "/" + k.Hash
}

// RefEntry is one row of the reference table.
type RefEntry struct {
	Hash      string    `json:"hash"`
	Kind      string    `json:"kind"`
	RefCount  int       `json:"ref_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the entry's identity.
func (e RefEntry) Key() RefKey {
	return RefKey{Hash: e.Hash, Kind: e.Kind}
}

var (
	kindPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)
	hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

var reservedKinds = map[string]struct{}{
	"tmp": {},
}

// ParseKind normalizes and validates a blob kind such as "pdf" or "tei".
func ParseKind(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("blob kind is required")
	}
	if !kindPattern.MatchString(value) {
		return "", fmt.Errorf("invalid blob kind: %q", raw)
	}
	if _, ok := reservedKinds[value]; ok {
		return "", fmt.Errorf("reserved blob kind: %q", raw)
	}
	return value, nil
}

// ValidHash reports whether value is a lowercase hex SHA-256 digest.
func ValidHash(value string) bool {
	return hashPattern.MatchString(value)
}
