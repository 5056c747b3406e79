package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"docvault/internal/api"
	"docvault/internal/auth"
	"docvault/internal/locks"
	"docvault/internal/replica"
	"docvault/internal/session"
	"docvault/internal/storage"
	"docvault/internal/syncer"
)

const (
	defaultJSONMaxBody = 1 << 20   // 1 MiB
	defaultFileMaxBody = 256 << 20 // 256 MiB
)

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(status, err)
	numericCode := errorNumericCode(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		s.log().Warn("request failed", fields...)
	case status >= 500:
		s.log().Error("request error", fields...)
		message = "internal error"
	case status >= 400 && shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	if r != nil && r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code, ErrorCode: numericCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, err)
}

func unauthorized(err error, code int) error {
	return makeAPIError(http.StatusUnauthorized, "unauthorized", code, err)
}

// classifyServiceError maps storage, lock, session and sync errors onto
// HTTP statuses. Anything unrecognized is an internal store failure.
func classifyServiceError(err error) error {
	var existing apiError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &existing):
		return existing
	case errors.Is(err, storage.ErrInvalidPath):
		return badRequestCode(err, ErrCodeInvalidPath)
	case errors.Is(err, auth.ErrInvalidUsername):
		return badRequestCode(err, ErrCodeInvalidArgument)
	case errors.Is(err, storage.ErrNotFound):
		return makeAPIError(http.StatusNotFound, "not_found", ErrCodeDocumentNotFound, err)
	case errors.Is(err, session.ErrUnknownSession):
		return makeAPIError(http.StatusNotFound, "not_found", ErrCodeSessionNotFound, err)
	case errors.Is(err, locks.ErrLockConflict):
		return makeAPIError(http.StatusLocked, "locked", ErrCodeLockConflict, err)
	case errors.Is(err, locks.ErrLockOwnership):
		return makeAPIError(http.StatusConflict, "conflict", ErrCodeLockOwnership, err)
	case errors.Is(err, locks.ErrLockNotHeld):
		return makeAPIError(http.StatusConflict, "conflict", ErrCodeLockNotHeld, err)
	case errors.Is(err, storage.ErrSyncDisabled):
		return makeAPIError(http.StatusConflict, "failed_precondition", ErrCodeSyncDisabled, err)
	case errors.Is(err, syncer.ErrSyncLockTimeout):
		return makeAPIError(http.StatusServiceUnavailable, "unavailable", ErrCodeSyncLockTimeout, err)
	case replica.IsTransient(err):
		return makeAPIError(http.StatusBadGateway, "remote_unavailable", ErrCodeRemoteFailure, err)
	case syncer.IsStructural(err):
		return makeAPIError(http.StatusBadGateway, "remote_inconsistent", ErrCodeRemoteStructure, err)
	case errors.Is(err, storage.ErrBlobMissing):
		return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeBlobMissing, err)
	default:
		return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeStoreFailure, err)
	}
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	switch status {
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusLocked:
		return "locked"
	case http.StatusTooManyRequests:
		return "resource_exhausted"
	case http.StatusInternalServerError:
		return "internal"
	default:
		return ""
	}
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(defaultJSONMaxBody))
	return json.NewDecoder(r.Body).Decode(dst)
}

func classifyDecodeJSONError(err error) error {
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON)
	}

	return badRequestCode(err, ErrCodeInvalidJSON)
}

func (s *Server) decodeJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	err = classifyServiceError(err)
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

func queryBool(r *http.Request, key string) (bool, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, badRequestCode(fmt.Errorf("invalid %s", key), ErrCodeInvalidQuery)
	}
	return parsed, nil
}

func (s *Server) queryBoolReq(w http.ResponseWriter, r *http.Request, key string) (bool, bool) {
	value, err := queryBool(r, key)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return false, false
	}
	return value, true
}
