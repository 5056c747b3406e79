package server

import (
	"net/http"

	"docvault/internal/api"
	"docvault/internal/syncer"
)

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	force, ok := s.queryBoolReq(w, r, "force")
	if !ok {
		return
	}
	summary, err := s.svc.RunSync(r.Context(), syncer.RunOptions{Force: force})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	dryRun, ok := s.queryBoolReq(w, r, "dry_run")
	if !ok {
		return
	}
	if dryRun {
		plan, err := s.svc.PlanGarbageCollection(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.GCResponse{DryRun: true, Plan: &plan})
		return
	}
	report, err := s.svc.RunGarbageCollection(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.GCResponse{Report: &report})
}
