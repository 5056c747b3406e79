package replica

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// BillyFS is a replica backed by a go-billy filesystem.
type BillyFS struct {
	fs billy.Filesystem
	// osRoot is set for OS-backed trees so mtimes can be changed even
	// though osfs does not implement billy.Change.
	osRoot string
}

// NewBillyFS wraps an arbitrary billy filesystem.
func NewBillyFS(fsys billy.Filesystem) *BillyFS {
	return &BillyFS{fs: fsys}
}

// NewOSFS returns a replica rooted at dir on the local disk, creating it
// if needed. Paths cannot escape dir.
func NewOSFS(dir string) (*BillyFS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &BillyFS{fs: osfs.New(abs, osfs.WithBoundOS()), osRoot: abs}, nil
}

// Root returns the local root of OS-backed replicas, or "".
func (b *BillyFS) Root() string {
	return b.osRoot
}

// Raw returns the underlying go-billy filesystem.
func (b *BillyFS) Raw() billy.Filesystem {
	return b.fs
}

// List walks the whole tree and returns every regular file.
func (b *BillyFS) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := util.Walk(b.fs, "", func(name string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		out = append(out, Entry{
			Name:    filepath.ToSlash(name),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("billy: list: %w", err)
	}
	return out, nil
}

// Stat returns the entry for name.
func (b *BillyFS) Stat(ctx context.Context, name string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	clean, err := cleanName(name)
	if err != nil {
		return Entry{}, err
	}
	info, err := b.fs.Stat(clean)
	if err != nil {
		return Entry{}, fmt.Errorf("billy: stat %q: %w", clean, err)
	}
	if info.IsDir() {
		return Entry{}, fmt.Errorf("billy: stat %q: is a directory", clean)
	}
	return Entry{Name: clean, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// Read returns the content of name.
func (b *BillyFS) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	data, err := util.ReadFile(b.fs, clean)
	if err != nil {
		return nil, fmt.Errorf("billy: read %q: %w", clean, err)
	}
	return data, nil
}

// Write replaces name with data, creating parent directories.
func (b *BillyFS) Write(ctx context.Context, name string, data []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	if dir := path.Dir(clean); dir != "." {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("billy: mkdirall %q: %w", dir, err)
		}
	}
	f, err := b.fs.OpenFile(clean, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("billy: open %q: %w", clean, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("billy: close %q: %w", clean, cerr)
		}
	}()
	n, err := f.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("billy: write %q: %w", clean, err)
	}
	return nil
}

// Remove deletes name.
func (b *BillyFS) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	if err := b.fs.Remove(clean); err != nil {
		return fmt.Errorf("billy: remove %q: %w", clean, err)
	}
	return nil
}

// SetModTime sets both atime and mtime of name.
func (b *BillyFS) SetModTime(ctx context.Context, name string, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	if ch, ok := b.fs.(billy.Change); ok {
		if err := ch.Chtimes(clean, t, t); err != nil {
			return fmt.Errorf("billy: chtimes %q: %w", clean, err)
		}
		return nil
	}
	if b.osRoot == "" {
		return ErrModTimeUnsupported
	}
	if err := os.Chtimes(filepath.Join(b.osRoot, filepath.FromSlash(clean)), t, t); err != nil {
		return fmt.Errorf("billy: chtimes %q: %w", clean, err)
	}
	return nil
}

var _ FS = (*BillyFS)(nil)
