package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"docvault/internal/models"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "DOCVAULT_HTTP_TIMEOUT"
	apiTokenEnvKey     = "DOCVAULT_API_TOKEN"
	adminTokenEnvKey   = "DOCVAULT_ADMIN_TOKEN"

	// SessionIDHeader and SessionTokenHeader identify the editing session.
	SessionIDHeader    = "X-Session-ID"
	SessionTokenHeader = "X-Session-Token"
	// KindHeader carries the document kind on uploads and downloads.
	KindHeader = "X-Document-Kind"
	// HashHeader carries the content digest on downloads.
	HashHeader = "X-Document-Hash"
)

// Client is a simple HTTP client for the docvault API.
type Client struct {
	baseURL      string
	http         *http.Client
	longHTTP     *http.Client
	authToken    string
	adminToken   string
	sessionID    string
	sessionToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		longHTTP:   &http.Client{},
		authToken:  strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// WithSession returns a copy of the client that sends session credentials.
func (c *Client) WithSession(id, token string) *Client {
	clone := *c
	clone.sessionID = strings.TrimSpace(id)
	clone.sessionToken = strings.TrimSpace(token)
	return &clone
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, nil, &resp)
	return resp, err
}

// PutFile uploads content to path. An empty kind lets the server derive it
// from the extension.
func (c *Client) PutFile(ctx context.Context, path, kind string, content []byte) (models.Document, error) {
	var doc models.Document
	req, err := c.newRequest(ctx, http.MethodPut, filePath(path), nil, bytes.NewReader(content))
	if err != nil {
		return doc, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if kind != "" {
		req.Header.Set(KindHeader, kind)
	}
	err = c.send(c.http, req, &doc)
	return doc, err
}

// GetFile downloads the live content of path.
func (c *Client) GetFile(ctx context.Context, path string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, filePath(path), nil, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", decodeError(resp)
	}
	content, err := io.ReadAll(resp.Body)
	return content, resp.Header.Get(KindHeader), err
}

func (c *Client) DeleteFile(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, filePath(path), nil, nil, nil)
}

func (c *Client) ListFiles(ctx context.Context, includeDeleted bool) ([]models.Document, error) {
	var resp FileListResponse
	query := url.Values{}
	if includeDeleted {
		query.Set("include_deleted", "true")
	}
	err := c.do(ctx, http.MethodGet, "/v1/files", query, nil, &resp)
	return resp.Files, err
}

func (c *Client) AcquireLock(ctx context.Context, path string) (LockAcquireResponse, error) {
	var resp LockAcquireResponse
	err := c.do(ctx, http.MethodPost, "/v1/locks/acquire", nil, LockRequest{Path: path}, &resp)
	return resp, err
}

func (c *Client) ReleaseLock(ctx context.Context, path string) (LockReleaseResponse, error) {
	var resp LockReleaseResponse
	err := c.do(ctx, http.MethodPost, "/v1/locks/release", nil, LockRequest{Path: path}, &resp)
	return resp, err
}

func (c *Client) HeartbeatLock(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodPost, "/v1/locks/heartbeat", nil, LockRequest{Path: path}, nil)
}

func (c *Client) ListLocks(ctx context.Context) (LockListResponse, error) {
	var resp LockListResponse
	err := c.do(ctx, http.MethodGet, "/v1/locks", nil, nil, &resp)
	return resp, err
}

func (c *Client) PurgeLocks(ctx context.Context) (LockPurgeResponse, error) {
	var resp LockPurgeResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/locks/purge", nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateSession(ctx context.Context, user string) (SessionCreateResponse, error) {
	var resp SessionCreateResponse
	err := c.do(ctx, http.MethodPost, "/v1/sessions", nil, SessionCreateRequest{User: user}, &resp)
	return resp, err
}

func (c *Client) EndSession(ctx context.Context, id string) (SessionEndResponse, error) {
	var resp SessionEndResponse
	err := c.do(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) Sync(ctx context.Context, force bool) (SyncResponse, error) {
	var resp SyncResponse
	query := url.Values{}
	if force {
		query.Set("force", "true")
	}
	err := c.doLong(ctx, http.MethodPost, "/v1/sync", query, &resp)
	return resp, err
}

func (c *Client) GC(ctx context.Context, dryRun bool) (GCResponse, error) {
	var resp GCResponse
	query := url.Values{}
	if dryRun {
		query.Set("dry_run", "true")
	}
	err := c.doLong(ctx, http.MethodPost, "/v1/admin/gc", query, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, method, path, query, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(c.http, req, out)
}

// doLong is do without the client timeout, for sync and gc runs that are
// bounded by ctx instead.
func (c *Client) doLong(ctx context.Context, method, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, method, path, query, nil)
	if err != nil {
		return err
	}
	return c.send(c.longHTTP, req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	c.setAuthHeader(req)
	c.setAdminHeader(req)
	c.setSessionHeaders(req)
	return req, nil
}

func (c *Client) send(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || req.Method == http.MethodHead {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func filePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return "/v1/files/" + strings.Join(segments, "/")
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminToken == "" || req == nil {
		return
	}
	if !strings.HasPrefix(req.URL.Path, "/v1/admin/") {
		return
	}
	req.Header.Set("X-Admin-Token", c.adminToken)
}

func (c *Client) setSessionHeaders(req *http.Request) {
	if c.sessionID == "" || req == nil {
		return
	}
	req.Header.Set(SessionIDHeader, c.sessionID)
	req.Header.Set(SessionTokenHeader, c.sessionToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
