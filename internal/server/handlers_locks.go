package server

import (
	"fmt"
	"net/http"
	"strings"

	"docvault/internal/api"
)

func (s *Server) decodeLockReq(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req api.LockRequest
	if !s.decodeJSONReq(w, r, &req) {
		return "", false
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("path is required"), ErrCodeMissingRequired))
		return "", false
	}
	return path, true
}

func (s *Server) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}
	path, ok := s.decodeLockReq(w, r)
	if !ok {
		return
	}
	acquired, err := s.svc.AcquireFileLock(r.Context(), path, sess.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := api.LockAcquireResponse{Path: path, Acquired: acquired, Owner: sess.ID}
	if !acquired {
		status, err := s.svc.CheckFileLock(r.Context(), path, sess.ID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		resp.Owner = status.Owner
		s.writeJSON(w, http.StatusLocked, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}
	path, ok := s.decodeLockReq(w, r)
	if !ok {
		return
	}
	result, err := s.svc.ReleaseFileLock(r.Context(), path, sess.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.LockReleaseResponse{Path: path, Result: result})
}

func (s *Server) handleHeartbeatLock(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}
	path, ok := s.decodeLockReq(w, r)
	if !ok {
		return
	}
	if err := s.svc.HeartbeatFileLock(r.Context(), path, sess.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckLock(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("path is required"), ErrCodeMissingRequired))
		return
	}
	sess, err := s.requestSession(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	sessionID := ""
	if sess != nil {
		sessionID = sess.ID
	}
	status, err := s.svc.CheckFileLock(r.Context(), path, sessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	active, err := s.svc.ActiveLocks(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.LockListResponse{Locks: active})
}

func (s *Server) handlePurgeLocks(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.PurgeStaleLocks(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.LockPurgeResponse{Purged: n})
}
