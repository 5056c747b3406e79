package server

import (
	"fmt"
	"net/http"
	"strings"

	"docvault/internal/api"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.SessionCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	created, err := s.svc.Sessions().Create(r.Context(), req.User)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

// handleEndSession requires the session's own credentials, or the admin
// token when one is configured.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("session id is required"), ErrCodeMissingRequired))
		return
	}
	if !(s.adminToken != "" && tokenMatches(r.Header.Get("X-Admin-Token"), s.adminToken)) {
		sess, ok := s.sessionOrError(w, r)
		if !ok {
			return
		}
		if sess.ID != id {
			s.writeErrorReq(w, r, http.StatusForbidden, makeAPIError(http.StatusForbidden, "forbidden", ErrCodeForbidden, fmt.Errorf("cannot end another session")))
			return
		}
	}
	released, err := s.svc.Sessions().End(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionEndResponse{ID: id, LocksReleased: released})
}
