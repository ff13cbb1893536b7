// Package client is a typed HTTP client for the sandbox broker's tool API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mcpsandbox/mcpsandbox/pkg/types"
)

// Client talks to the broker's tool API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a broker API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// do performs a POST with a JSON body and decodes the response into out.
// Broker errors come back as *types.Error.
func (c *Client) do(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr types.Error
		if derr := json.NewDecoder(resp.Body).Decode(&apiErr); derr == nil && apiErr.Kind != "" {
			return &apiErr
		}
		return fmt.Errorf("API error (status %d)", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Upload places a file into a session, creating one when sessionID is empty.
func (c *Client) Upload(ctx context.Context, req types.UploadRequest) (*types.UploadResult, error) {
	var result types.UploadResult
	if err := c.do(ctx, "/v1/upload", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Execute runs code in a session, creating one when sessionID is empty.
func (c *Client) Execute(ctx context.Context, req types.ExecuteRequest) (*types.RunResult, error) {
	var result types.RunResult
	if err := c.do(ctx, "/v1/execute", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Read fetches one artifact as base64.
func (c *Client) Read(ctx context.Context, sessionID, path string) (*types.ReadResult, error) {
	var result types.ReadResult
	if err := c.do(ctx, "/v1/read", types.ReadRequest{SessionID: sessionID, Path: path}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// List enumerates a session's artifacts.
func (c *Client) List(ctx context.Context, sessionID string) (*types.ListResult, error) {
	var result types.ListResult
	if err := c.do(ctx, "/v1/list", types.SessionRequest{SessionID: sessionID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Close destroys a session.
func (c *Client) Close(ctx context.Context, sessionID string) (*types.CloseResult, error) {
	var result types.CloseResult
	if err := c.do(ctx, "/v1/close", types.SessionRequest{SessionID: sessionID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Download fetches an artifact's raw bytes from the files route.
func (c *Client) Download(ctx context.Context, sessionID, filename string) ([]byte, error) {
	url := fmt.Sprintf("%s/files/%s/%s", c.baseURL, sessionID, filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download failed (status %d): %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}
