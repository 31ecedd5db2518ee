package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP implementation of Service. It speaks a small JSON
// protocol against the DirectGTD record service:
//
//	GET  /v1/account
//	PUT  /v1/zone
//	GET  /v1/changes?cursor=...
//	POST /v1/batch
//	POST /v1/subscriptions
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a remote client for the given service URL. The token
// authenticates the user's account and may be empty for anonymous probes.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes the service uses for the structural failure modes.
const (
	codeNoAccount     = "no_account"
	codeRestricted    = "restricted"
	codeZoneNotFound  = "zone_not_found"
	codeCursorExpired = "cursor_expired"
)

// CheckAccount implements Service.
func (c *Client) CheckAccount(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/account", nil, nil)
}

// EnsureZone implements Service.
func (c *Client) EnsureZone(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/v1/zone", nil, nil)
}

// FetchChanges implements Service.
func (c *Client) FetchChanges(ctx context.Context, cursor []byte) (*ChangePage, error) {
	path := "/v1/changes"
	if len(cursor) > 0 {
		path += "?cursor=" + url.QueryEscape(base64.StdEncoding.EncodeToString(cursor))
	}
	var page ChangePage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

type batchRequest struct {
	Saves   []WireRecord `json:"saves,omitempty"`
	Deletes []string     `json:"deletes,omitempty"`
}

type batchResponse struct {
	Results []WriteResult `json:"results"`
}

// BatchWrite implements Service.
func (c *Client) BatchWrite(ctx context.Context, saves []WireRecord, deletes []string) ([]WriteResult, error) {
	if len(saves)+len(deletes) > BatchLimit {
		return nil, fmt.Errorf("batch of %d records exceeds limit of %d", len(saves)+len(deletes), BatchLimit)
	}
	var resp batchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/batch", batchRequest{Saves: saves, Deletes: deletes}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

type subscribeRequest struct {
	DeviceID string `json:"device_id"`
}

// RegisterNotifications implements Service.
func (c *Client) RegisterNotifications(ctx context.Context, deviceID string) error {
	return c.do(ctx, http.MethodPost, "/v1/subscriptions", subscribeRequest{DeviceID: deviceID}, nil)
}

// do issues one request and maps error responses onto the package's
// sentinel errors.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.mapError(resp.StatusCode, data)
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// mapError turns an HTTP error response into a sentinel error where one
// applies, so the engine's recovery paths trigger on errors.Is checks.
func (c *Client) mapError(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)

	switch er.Code {
	case codeNoAccount:
		return ErrNoAccount
	case codeRestricted:
		return ErrRestricted
	case codeZoneNotFound:
		return ErrZoneNotFound
	case codeCursorExpired:
		return ErrCursorExpired
	}

	switch status {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ErrUnavailable
	case http.StatusConflict:
		return ErrBusy
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrRestricted
	}

	if er.Error != "" {
		return fmt.Errorf("remote: %s (status %d)", er.Error, status)
	}
	return fmt.Errorf("remote: request failed with status %d", status)
}
