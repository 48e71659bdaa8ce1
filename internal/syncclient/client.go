// Package syncclient is the HTTP client for the remote authority. Every
// call is authenticated with a bearer token supplied by the auth context;
// token lifecycle is managed elsewhere.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Client talks to the tbd-server API.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new sync client with a default per-call timeout.
func New(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// RemoteRecord is a server-authoritative entity as returned by a pull.
type RemoteRecord struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	UpdatedAt   string          `json:"updated_at"`
	Data        json.RawMessage `json:"data"`
}

// CreateResponse is the response to an entity create; ID is the canonical
// server-assigned id (equal to the client id when the server adopted it).
type CreateResponse struct {
	ID        string `json:"id"`
	UpdatedAt string `json:"updated_at"`
}

// StatusResponse is the response from GET /v1/workspaces/{ws}/status.
type StatusResponse struct {
	Counts       map[string]int64 `json:"counts"`
	LastModified string           `json:"last_modified,omitempty"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck verifies server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, "GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull fetches entities of one kind for a workspace. When modifiedAfter is
// non-nil only records changed since that timestamp are returned; nil asks
// for a full fetch.
func (c *Client) Pull(ctx context.Context, workspaceID, kind string, modifiedAfter *time.Time) ([]RemoteRecord, error) {
	path := fmt.Sprintf("/v1/workspaces/%s/entities/%s", workspaceID, kind)
	if modifiedAfter != nil {
		params := url.Values{}
		params.Set("modified_after", modifiedAfter.UTC().Format(time.RFC3339Nano))
		path += "?" + params.Encode()
	}
	var resp []RemoteRecord
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Create pushes one CREATE action with the full payload. The server is
// idempotent by entity id: replaying a create after a lost acknowledgment
// returns the existing canonical id instead of a duplicate.
func (c *Client) Create(ctx context.Context, workspaceID, kind string, payload json.RawMessage) (*CreateResponse, error) {
	var resp CreateResponse
	path := fmt.Sprintf("/v1/workspaces/%s/entities/%s", workspaceID, kind)
	if err := c.do(ctx, "POST", path, payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Update pushes one UPDATE action with the full payload.
func (c *Client) Update(ctx context.Context, workspaceID, kind, id string, payload json.RawMessage) error {
	path := fmt.Sprintf("/v1/workspaces/%s/entities/%s/%s", workspaceID, kind, id)
	return c.do(ctx, "PUT", path, payload, nil)
}

// Delete pushes one DELETE action; only the id travels.
func (c *Client) Delete(ctx context.Context, workspaceID, kind, id string) error {
	path := fmt.Sprintf("/v1/workspaces/%s/entities/%s/%s", workspaceID, kind, id)
	err := c.do(ctx, "DELETE", path, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil // already gone; delete is idempotent
	}
	return err
}

// WorkspaceStatus fetches entity counts for a workspace.
func (c *Client) WorkspaceStatus(ctx context.Context, workspaceID string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, "GET", fmt.Sprintf("/v1/workspaces/%s/status", workspaceID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		var data []byte
		if raw, ok := body.(json.RawMessage); ok {
			data = raw
		} else {
			var err error
			data, err = json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var wrapped struct {
			Error apiError `json:"error"`
		}
		apiErr := apiError{}
		if json.Unmarshal(respBody, &wrapped) == nil {
			apiErr = wrapped.Error
		}
		if apiErr.Code != "" {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
			case http.StatusForbidden:
				return fmt.Errorf("%w: %s", ErrForbidden, apiErr.Message)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
			default:
				return &apiErr
			}
		}
		if resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
