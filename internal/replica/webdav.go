package replica

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"
)

// maxCallTimeout bounds a single HTTP exchange even when the caller's
// context has no deadline.
const maxCallTimeout = 10 * time.Minute

// WebDAVConfig describes a WebDAV remote.
type WebDAVConfig struct {
	URL      string
	User     string
	Password string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// WebDAVFS is a replica on a WebDAV server. The server assigns mtimes on
// upload, so SetModTime is unsupported.
type WebDAVFS struct {
	client *gowebdav.Client
	url    string
}

// NewWebDAVFS creates a client for cfg. No request is made until first use.
func NewWebDAVFS(cfg WebDAVConfig) (*WebDAVFS, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("webdav url is required")
	}
	c := gowebdav.NewClient(cfg.URL, cfg.User, cfg.Password)
	c.SetTimeout(maxCallTimeout)
	if cfg.Transport != nil {
		c.SetTransport(cfg.Transport)
	}
	return &WebDAVFS{client: c, url: cfg.URL}, nil
}

// do runs fn and gives up when ctx ends. gowebdav has no context support,
// so an abandoned call finishes in the background, bounded by maxCallTimeout.
func (w *WebDAVFS) do(ctx context.Context, fn func(c *gowebdav.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn(w.client) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// List walks every collection below the root.
func (w *WebDAVFS) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	pending := []string{""}
	for len(pending) > 0 {
		dir := pending[0]
		pending = pending[1:]

		var infos []os.FileInfo
		err := w.do(ctx, func(c *gowebdav.Client) error {
			var err error
			infos, err = c.ReadDir("/" + dir)
			return err
		})
		if err != nil {
			if notFound(err) && dir != "" {
				continue
			}
			return nil, fmt.Errorf("webdav: list %q: %w", dir, mapNotFound(err))
		}
		for _, info := range infos {
			name := info.Name()
			if dir != "" {
				name = path.Join(dir, name)
			}
			if info.IsDir() {
				pending = append(pending, name)
				continue
			}
			out = append(out, Entry{Name: name, ModTime: info.ModTime(), Size: info.Size()})
		}
	}
	return out, nil
}

// Stat returns the entry for name.
func (w *WebDAVFS) Stat(ctx context.Context, name string) (Entry, error) {
	clean, err := cleanName(name)
	if err != nil {
		return Entry{}, err
	}
	var info os.FileInfo
	err = w.do(ctx, func(c *gowebdav.Client) error {
		var err error
		info, err = c.Stat("/" + clean)
		return err
	})
	if err != nil {
		return Entry{}, fmt.Errorf("webdav: stat %q: %w", clean, mapNotFound(err))
	}
	if info.IsDir() {
		return Entry{}, fmt.Errorf("webdav: stat %q: is a collection", clean)
	}
	return Entry{Name: clean, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// Read downloads name.
func (w *WebDAVFS) Read(ctx context.Context, name string) ([]byte, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = w.do(ctx, func(c *gowebdav.Client) error {
		var err error
		data, err = c.Read("/" + clean)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("webdav: read %q: %w", clean, mapNotFound(err))
	}
	return data, nil
}

// Write uploads data to name, creating parent collections.
func (w *WebDAVFS) Write(ctx context.Context, name string, data []byte) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	// gowebdav creates missing parent collections on a 409 from PUT.
	err = w.do(ctx, func(c *gowebdav.Client) error {
		return c.Write("/"+clean, data, 0o644)
	})
	if err != nil {
		return fmt.Errorf("webdav: write %q: %w", clean, err)
	}
	return nil
}

// Remove deletes name.
func (w *WebDAVFS) Remove(ctx context.Context, name string) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	// gowebdav's Remove treats 404 as success, so check first to keep the
	// not-exist contract of FS.
	if _, err := w.Stat(ctx, clean); err != nil {
		return err
	}
	err = w.do(ctx, func(c *gowebdav.Client) error {
		return c.Remove("/" + clean)
	})
	if err != nil {
		return fmt.Errorf("webdav: remove %q: %w", clean, mapNotFound(err))
	}
	return nil
}

// SetModTime is not available over WebDAV.
func (w *WebDAVFS) SetModTime(context.Context, string, time.Time) error {
	return ErrModTimeUnsupported
}

func (w *WebDAVFS) String() string {
	return w.url
}

func notFound(err error) bool {
	return gowebdav.IsErrNotFound(err) || errors.Is(err, fs.ErrNotExist)
}

func mapNotFound(err error) error {
	if err != nil && !errors.Is(err, fs.ErrNotExist) && gowebdav.IsErrNotFound(err) {
		return fmt.Errorf("%w: %v", fs.ErrNotExist, err)
	}
	return err
}

var _ FS = (*WebDAVFS)(nil)
