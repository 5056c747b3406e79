package replica

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// RemoteConfig selects and configures the remote replica.
type RemoteConfig struct {
	URL      string
	User     string
	Password string
}

// OpenRemote returns the replica for cfg.URL: http(s) URLs are WebDAV
// servers and file URLs are directories such as a mounted share.
func OpenRemote(cfg RemoteConfig) (FS, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, fmt.Errorf("remote url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewWebDAVFS(WebDAVConfig{URL: raw, User: cfg.User, Password: cfg.Password})
	case "file":
		dir := u.Path
		if u.Host != "" && u.Host != "localhost" {
			return nil, fmt.Errorf("file url must be local: %s", raw)
		}
		if dir == "" {
			return nil, fmt.Errorf("file url has no path: %s", raw)
		}
		return NewOSFS(filepath.FromSlash(dir))
	default:
		return nil, fmt.Errorf("unsupported remote scheme %q", u.Scheme)
	}
}
