package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"docvault/internal/api"
	"docvault/internal/locks"
	"docvault/internal/models"
)

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	includeDeleted, ok := s.queryBoolReq(w, r, "include_deleted")
	if !ok {
		return
	}
	docs, err := s.svc.ListFiles(r.Context(), includeDeleted)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	s.writeJSON(w, http.StatusOK, api.FileListResponse{Files: docs})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if r.Method == http.MethodHead {
		doc, err := s.svc.StatFile(r.Context(), path)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		setDocumentHeaders(w, doc.Kind, doc.Hash)
		w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	content, doc, err := s.svc.ReadFile(r.Context(), path)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	setDocumentHeaders(w, doc.Kind, doc.Hash)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		s.log().Debug("write file response", "path", path, "error", err)
	}
}

func (s *Server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	if !s.acquireLimiter(s.uploadLimiter, w, r, "upload") {
		return
	}
	defer s.releaseLimiter(s.uploadLimiter)

	path := r.PathValue("path")
	if !s.writeAllowed(w, r, path) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxFileBytes)
	content, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("document larger than %d bytes", s.maxFileBytes), ErrCodeRequestTooLarge))
			return
		}
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidArgument))
		return
	}

	kind := strings.TrimSpace(r.Header.Get(api.KindHeader))
	if kind == "" {
		kind = strings.TrimSpace(r.URL.Query().Get("kind"))
	}
	doc, err := s.svc.SaveFile(r.Context(), path, kind, content)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if !s.writeAllowed(w, r, path) {
		return
	}
	if err := s.svc.DeleteFile(r.Context(), path); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeAllowed rejects a write to a path that another live session has
// locked. Requests without a session may only write unlocked paths.
func (s *Server) writeAllowed(w http.ResponseWriter, r *http.Request, path string) bool {
	sess, err := s.requestSession(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return false
	}
	sessionID := ""
	if sess != nil {
		sessionID = sess.ID
	}
	status, err := s.svc.CheckFileLock(r.Context(), path, sessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return false
	}
	if status.Locked && !status.OwnedByMe {
		s.writeServiceError(w, r, fmt.Errorf("%s held by %s: %w", status.Path, status.Owner, locks.ErrLockConflict))
		return false
	}
	return true
}

func setDocumentHeaders(w http.ResponseWriter, kind, hash string) {
	w.Header().Set(api.KindHeader, kind)
	w.Header().Set(api.HashHeader, hash)
	w.Header().Set("ETag", `"`+hash+`"`)
}
