package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/schema"
)

// Client is an Executor backed by a SmartSuite-style REST API.
//
// Endpoints follow the resource-oriented convention:
//
//	POST   {base}/applications/{resource}/records/            create
//	PATCH  {base}/applications/{resource}/records/{record}/   update
//	DELETE {base}/applications/{resource}/records/{record}/   delete
//	GET    {base}/applications/{resource}/records/{record}/   read
//	GET    {base}/applications/{resource}/                    schema
//	POST   {base}/applications/{resource}/records/list/       bounded list
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the given API base URL and auth token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// StatusError reports a non-2xx response from the remote API.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote API returned %d for %s %s", e.StatusCode, e.Method, e.URL)
}

func (c *Client) CreateRecord(ctx context.Context, resourceID string, payload map[string]any) (Record, error) {
	url := fmt.Sprintf("%s/applications/%s/records/", c.baseURL, resourceID)
	var rec Record
	if err := c.do(ctx, http.MethodPost, url, payload, &rec); err != nil {
		return nil, fmt.Errorf("create record in %s: %w", resourceID, err)
	}
	return rec, nil
}

func (c *Client) UpdateRecord(ctx context.Context, resourceID, recordID string, payload map[string]any) (Record, error) {
	url := fmt.Sprintf("%s/applications/%s/records/%s/", c.baseURL, resourceID, recordID)
	var rec Record
	if err := c.do(ctx, http.MethodPatch, url, payload, &rec); err != nil {
		return nil, fmt.Errorf("update record %s in %s: %w", recordID, resourceID, err)
	}
	return rec, nil
}

func (c *Client) DeleteRecord(ctx context.Context, resourceID, recordID string) error {
	url := fmt.Sprintf("%s/applications/%s/records/%s/", c.baseURL, resourceID, recordID)
	if err := c.do(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return fmt.Errorf("delete record %s in %s: %w", recordID, resourceID, err)
	}
	return nil
}

func (c *Client) GetRecord(ctx context.Context, resourceID, recordID string) (Record, error) {
	url := fmt.Sprintf("%s/applications/%s/records/%s/", c.baseURL, resourceID, recordID)
	var rec Record
	if err := c.do(ctx, http.MethodGet, url, nil, &rec); err != nil {
		return nil, fmt.Errorf("get record %s in %s: %w", recordID, resourceID, err)
	}
	return rec, nil
}

func (c *Client) GetSchema(ctx context.Context, resourceID string) (*schema.Resource, error) {
	url := fmt.Sprintf("%s/applications/%s/", c.baseURL, resourceID)
	var res schema.Resource
	if err := c.do(ctx, http.MethodGet, url, nil, &res); err != nil {
		return nil, fmt.Errorf("get schema for %s: %w", resourceID, err)
	}
	return &res, nil
}

func (c *Client) ListRecords(ctx context.Context, resourceID string, limit int) ([]Record, error) {
	url := fmt.Sprintf("%s/applications/%s/records/list/?limit=%d", c.baseURL, resourceID, limit)
	var out struct {
		Items []Record `json:"items"`
	}
	if err := c.do(ctx, http.MethodPost, url, map[string]any{}, &out); err != nil {
		return nil, fmt.Errorf("list records in %s: %w", resourceID, err)
	}
	return out.Items, nil
}

// do issues one request and decodes the JSON response into out (if
// non-nil). Non-2xx statuses become *StatusError with a bounded body
// excerpt for diagnostics.
func (c *Client) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        url,
			Body:       string(excerpt),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
