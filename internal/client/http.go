package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/klicker/internal/auth"
	"github.com/alfredjeanlab/klicker/internal/model"
	"github.com/alfredjeanlab/klicker/internal/presence"
)

// defaultTimeout bounds a single request.
const defaultTimeout = 10 * time.Second

// HTTPClient implements Client using the klicker HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). The token, when set, is sent as a Bearer
// Authorization header.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SetToken replaces the bearer token used for writes.
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *HTTPClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// SignInAnonymously requests a fresh identity and starts using its token.
func (c *HTTPClient) SignInAnonymously(ctx context.Context) (*auth.Identity, error) {
	var id auth.Identity
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/anonymous", nil, &id); err != nil {
		return nil, err
	}
	c.SetToken(id.Token)
	return &id, nil
}

// --- Presenter writes ---

func (c *HTTPClient) CreateSession(ctx context.Context) (*model.Session, error) {
	var sess model.Session
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *HTTPClient) SendCommand(ctx context.Context, sessionID string, cmd model.Command) (*model.Session, error) {
	var sess model.Session
	body := map[string]string{"command": cmd.String()}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/commands", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *HTTPClient) SetActiveSession(ctx context.Context, sessionID string) (*model.ActivePointer, error) {
	var p model.ActivePointer
	body := map[string]string{"sessionId": sessionID}
	if err := c.doJSON(ctx, http.MethodPut, "/v1/active", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Reads ---

func (c *HTTPClient) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *HTTPClient) GetActive(ctx context.Context) (*model.ActivePointer, error) {
	var p model.ActivePointer
	if err := c.doJSON(ctx, http.MethodGet, "/v1/active", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) ListSessions(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	q := url.Values{}
	if filter.PresenterUID != "" {
		q.Set("presenter", filter.PresenterUID)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/v1/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Sessions []*model.Session `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetDocument fetches the raw JSON of the document at collection/id. It is
// used by watchers that forward snapshots without decoding them.
func (c *HTTPClient) GetDocument(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var path string
	switch collection {
	case model.CollectionSessions:
		path = "/v1/sessions/" + url.PathEscape(id)
	case model.CollectionActive:
		path = "/v1/active"
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Heartbeat reports a running bridge to the server's roster.
func (c *HTTPClient) Heartbeat(ctx context.Context, hb presence.Heartbeat) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/bridges/heartbeat", hb, nil)
}

// ListBridges returns the bridges the server has heard from.
func (c *HTTPClient) ListBridges(ctx context.Context, liveOnly bool) ([]presence.Entry, error) {
	path := "/v1/bridges"
	if liveOnly {
		path += "?live=true"
	}
	var resp struct {
		Bridges []presence.Entry `json:"bridges"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Bridges, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers match on the status class with errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode >= 500:
		return ErrStoreUnavailable
	}
	return nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrStoreUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrStoreUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
