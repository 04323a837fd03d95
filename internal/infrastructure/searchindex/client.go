// Package searchindex talks to the external document index. The relational
// store is authoritative; everything here is best effort and callers only log
// failures.
package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IsReady reports whether the index has finished ingesting the document. A
// 404 means the index has not seen it yet, which is "not ready", not an error.
func (c *Client) IsReady(ctx context.Context, docRef string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/documents/%s/status", c.baseURL, url.PathEscape(docRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("create index status request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("index status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, c.statusError("status", resp)
	}

	var decoded struct {
		Ready bool `json:"ready"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("decode index status response: %w", err)
	}
	return decoded.Ready, nil
}

func (c *Client) UpdateAttributes(ctx context.Context, docRef string, attrs map[string]any) error {
	body, err := json.Marshal(map[string]any{"attributes": attrs})
	if err != nil {
		return fmt.Errorf("marshal index attributes: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/documents/%s/attributes", c.baseURL, url.PathEscape(docRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create index update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("index update request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.statusError("update", resp)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Errorf("index %s status: %s", operation, resp.Status)
	}
	return fmt.Errorf("index %s status: %s: %s", operation, resp.Status, text)
}
