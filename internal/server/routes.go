package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check, info and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Documents. GET also serves HEAD.
	mux.HandleFunc("GET /v1/files", s.handleListFiles)
	mux.HandleFunc("GET /v1/files/{path...}", s.handleGetFile)
	mux.HandleFunc("PUT /v1/files/{path...}", s.handlePutFile)
	mux.HandleFunc("DELETE /v1/files/{path...}", s.handleDeleteFile)

	// File locks.
	mux.HandleFunc("POST /v1/locks/acquire", s.handleAcquireLock)
	mux.HandleFunc("POST /v1/locks/release", s.handleReleaseLock)
	mux.HandleFunc("POST /v1/locks/heartbeat", s.handleHeartbeatLock)
	mux.HandleFunc("GET /v1/locks/check", s.handleCheckLock)
	mux.HandleFunc("GET /v1/locks", s.handleListLocks)

	// Sessions.
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleEndSession)

	// Sync and maintenance.
	mux.HandleFunc("POST /v1/sync", s.handleSync)
	mux.HandleFunc("POST /v1/admin/gc", s.handleGC)
	mux.HandleFunc("POST /v1/admin/locks/purge", s.handlePurgeLocks)

	return mux
}
