// Package server is the HTTP boundary of docvault. Handlers decode
// requests, call the storage service and map its errors onto the JSON
// error envelope.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"docvault/internal/storage"
)

const (
	apiTokenEnvKey         = "DOCVAULT_API_TOKEN"
	adminTokenEnvKey       = "DOCVAULT_ADMIN_TOKEN"
	allowRemoteEnvKey      = "DOCVAULT_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 60 * time.Second
	writeTimeout           = 10 * time.Minute
	idleTimeout            = 60 * time.Second
	uploadConcurrencyLimit = 8
)

// Server wraps HTTP handlers for the docvault API.
type Server struct {
	addr          string
	svc           *storage.Service
	logger        *slog.Logger
	gatherer      prometheus.Gatherer
	apiToken      string
	adminToken    string
	maxFileBytes  int64
	uploadLimiter chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer selects the registry served on /metrics. The default is the
// prometheus default gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithMaxFileBytes caps the size of uploaded documents.
func WithMaxFileBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxFileBytes = n
		}
	}
}

// New creates a new server instance.
func New(addr string, svc *storage.Service, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:          addr,
		svc:           svc,
		logger:        logger,
		gatherer:      prometheus.DefaultGatherer,
		apiToken:      strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken:    strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
		maxFileBytes:  defaultFileMaxBody,
		uploadLimiter: make(chan struct{}, uploadConcurrencyLimit),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the fully wrapped route tree.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withAuth(s.routes()))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}
