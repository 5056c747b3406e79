package blobstore

import "context"

// BlobInfo describes one blob found on disk.
type BlobInfo struct {
	Hash      string `json:"hash"`
	Kind      string `json:"kind"`
	SizeBytes int64  `json:"size_bytes"`
	Path      string `json:"path"`
}

// ContentStore is the content-addressed byte storage used by the storage
// service and the garbage collector. It never touches reference counts.
type ContentStore interface {
	Save(ctx context.Context, content []byte, kind string) (hash string, path string, err error)
	Read(ctx context.Context, hash, kind string) ([]byte, bool, error)
	Exists(ctx context.Context, hash, kind string) (bool, error)
	Delete(ctx context.Context, hash, kind string) (bool, error)
	Walk(ctx context.Context, fn func(BlobInfo) error) error
}

var _ ContentStore = (*LocalCAS)(nil)
