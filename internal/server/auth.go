package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"docvault/internal/api"
	"docvault/internal/models"
	"docvault/internal/session"
)

// withAuth enforces the optional bearer token on /v1 routes and the admin
// token on /v1/admin routes. Health and metrics stay open.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/v1/admin/") && s.adminToken != "" {
			if !tokenMatches(r.Header.Get("X-Admin-Token"), s.adminToken) {
				s.writeErrorReq(w, r, http.StatusForbidden, makeAPIError(http.StatusForbidden, "forbidden", ErrCodeForbidden, fmt.Errorf("admin token required")))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if s.apiToken != "" {
			bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !tokenMatches(bearer, s.apiToken) {
				s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("missing or invalid api token"), ErrCodeUnauthorized))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func tokenMatches(got, want string) bool {
	got = strings.TrimSpace(got)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// requestSession authenticates the session headers. It returns nil without
// error when the request carries no session id.
func (s *Server) requestSession(r *http.Request) (*models.Session, error) {
	id := strings.TrimSpace(r.Header.Get(api.SessionIDHeader))
	if id == "" {
		return nil, nil
	}
	token := strings.TrimSpace(r.Header.Get(api.SessionTokenHeader))
	sess, err := s.svc.Sessions().Authenticate(r.Context(), id, token)
	switch {
	case errors.Is(err, session.ErrUnknownSession), errors.Is(err, session.ErrInvalidToken):
		return nil, unauthorized(err, ErrCodeUnauthorized)
	case err != nil:
		return nil, err
	}
	return sess, nil
}

// sessionOrError is requestSession with the headers made mandatory.
func (s *Server) sessionOrError(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	sess, err := s.requestSession(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	if sess == nil {
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("%s and %s headers are required", api.SessionIDHeader, api.SessionTokenHeader), ErrCodeSessionRequired))
		return nil, false
	}
	return sess, true
}
