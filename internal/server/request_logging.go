package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docvault/internal/api"
)

// accessRecorder captures the status and size of a response.
type accessRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *accessRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *accessRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *accessRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *accessRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *accessRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// quietPaths are polled by the CLI autostart and by scrapers.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// accessLevel picks the level a finished request is logged at. Remote
// failures are Warn, other server faults Error. Lock refusals, sync runs and
// admin calls are Info; everything else is Debug.
func accessLevel(r *http.Request, status int) slog.Level {
	switch {
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return slog.LevelWarn
	case status >= 500:
		return slog.LevelError
	case status == http.StatusLocked || status == http.StatusConflict:
		return slog.LevelInfo
	case r.URL.Path == "/v1/sync" || strings.HasPrefix(r.URL.Path, "/v1/admin/"):
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if quietPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &accessRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.code()
		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int64("bytes", rec.bytes),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if doc, ok := strings.CutPrefix(r.URL.Path, "/v1/files/"); ok && doc != "" {
			attrs = append(attrs, slog.String("document", doc))
		}
		if id := r.Header.Get(api.SessionIDHeader); id != "" {
			attrs = append(attrs, slog.String("session", id))
		}
		if r.URL.Path == "/v1/sync" {
			attrs = append(attrs, slog.Bool("force", r.URL.Query().Get("force") == "true"))
		}
		s.log().LogAttrs(r.Context(), accessLevel(r, status), "request complete", attrs...)
	})
}
