package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"docvault/internal/models"
)

const (
	// ShardLayoutVersion identifies the on-disk shard layout. Changing
	// shardDepth or shardWidth requires a migration of existing trees.
	ShardLayoutVersion = 1

	shardDepth = 2
	shardWidth = 2
	tmpDirName = "tmp"
)

// LocalCAS stores blob bytes in a local content-addressed tree laid out as
// <root>/<kind>/<aa>/<bb>/<hash>.
type LocalCAS struct {
	root string
}

// NewLocalCAS creates a local CAS rooted at root.
func NewLocalCAS(root string) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local cas root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, tmpDirName), 0o755); err != nil {
		return nil, err
	}
	return &LocalCAS{root: abs}, nil
}

// Root returns the absolute storage root.
func (c *LocalCAS) Root() string {
	return c.root
}

// Digest returns the hex SHA-256 of content.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Save computes the content hash and writes the blob only if it is absent.
func (c *LocalCAS) Save(ctx context.Context, content []byte, kind string) (string, string, error) {
	if c == nil {
		return "", "", fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if _, err := models.ParseKind(kind); err != nil {
		return "", "", err
	}

	digest := Digest(content)
	dst, err := c.Path(digest, kind)
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(dst); err == nil {
		return digest, dst, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", "", err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, tmpDirName), "put-*")
	if err != nil {
		return "", "", err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(content); err != nil {
		cleanup()
		return "", "", err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", "", err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", "", err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		if _, statErr := os.Stat(dst); statErr == nil {
			_ = os.Remove(tmpPath)
			return digest, dst, nil
		}
		cleanup()
		return "", "", err
	}

	return digest, dst, nil
}

// Read returns blob content. A missing blob is reported as (nil, false, nil).
func (c *LocalCAS) Read(ctx context.Context, hash, kind string) ([]byte, bool, error) {
	if c == nil {
		return nil, false, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	path, err := c.Path(hash, kind)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Exists reports whether the blob is present on disk.
func (c *LocalCAS) Exists(ctx context.Context, hash, kind string) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := c.Path(hash, kind)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the physical blob and reports whether anything was removed.
// Callers must have verified the blob is unreferenced.
func (c *LocalCAS) Delete(ctx context.Context, hash, kind string) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := c.Path(hash, kind)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Walk calls fn for every blob in the store. The tmp directory and files
// whose names are not valid digests are skipped.
func (c *LocalCAS) Walk(ctx context.Context, fn func(BlobInfo) error) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == tmpDirName {
			continue
		}
		kind := entry.Name()
		if _, err := models.ParseKind(kind); err != nil {
			continue
		}
		kindRoot := filepath.Join(c.root, kind)
		err := filepath.WalkDir(kindRoot, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			hash := d.Name()
			if !models.ValidHash(hash) {
				return nil
			}
			expected, err := c.Path(hash, kind)
			if err != nil || expected != path {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return nil
				}
				return err
			}
			return fn(BlobInfo{Hash: hash, Kind: kind, SizeBytes: info.Size(), Path: path})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Stats returns blob counts and total bytes per kind.
func (c *LocalCAS) Stats(ctx context.Context) (map[string]KindStats, error) {
	out := map[string]KindStats{}
	err := c.Walk(ctx, func(info BlobInfo) error {
		s := out[info.Kind]
		s.Blobs++
		s.Bytes += info.SizeBytes
		out[info.Kind] = s
		return nil
	})
	return out, err
}

// KindStats summarizes the blobs of one kind.
type KindStats struct {
	Blobs int   `json:"blobs"`
	Bytes int64 `json:"bytes"`
}

// Path returns the storage path for hash and kind.
func (c *LocalCAS) Path(hash, kind string) (string, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !models.ValidHash(hash) {
		return "", fmt.Errorf("invalid blob hash")
	}
	if _, err := models.ParseKind(kind); err != nil {
		return "", err
	}
	return filepath.Join(c.root, filepath.FromSlash(shardKey(hash, kind))), nil
}

func shardKey(hash, kind string) string {
	parts := make([]string, 0, shardDepth+2)
	parts = append(parts, kind)
	for i := 0; i < shardDepth; i++ {
		parts = append(parts, hash[i*shardWidth:(i+1)*shardWidth])
	}
	parts = append(parts, hash)
	return strings.Join(parts, "/")
}
