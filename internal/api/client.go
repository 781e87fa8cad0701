package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newsgraph/internal/services"
)

// RequestIDHeader carries the caller's request id to the daemon.
const RequestIDHeader = "X-Request-ID"

// Error is returned for non-2xx daemon replies.
type Error struct {
	StatusCode     int
	Message        string
	Classification string
}

func (e *Error) Error() string {
	if e.Classification != "" {
		return fmt.Sprintf("daemon returned %d (%s): %s", e.StatusCode, e.Classification, e.Message)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// NewClient builds a client for baseURL. An empty token sends no
// Authorization header.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitArticle enqueues an article.
func (c *Client) SubmitArticle(ctx context.Context, req ArticleRequest) (SubmitResponse, error) {
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/articles", nil, req, &resp)
	return resp, err
}

// SubmitFragment enqueues a document fragment.
func (c *Client) SubmitFragment(ctx context.Context, req FragmentRequest) (SubmitResponse, error) {
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/fragments", nil, req, &resp)
	return resp, err
}

// Item fetches the status record for id.
func (c *Client) Item(ctx context.Context, id string) (ItemStatus, error) {
	var resp ItemResponse
	err := c.do(ctx, http.MethodGet, "/api/items/"+url.PathEscape(id), nil, nil, &resp)
	return resp.Item, err
}

// ListItems lists status records, optionally filtered by status.
func (c *Client) ListItems(ctx context.Context, statuses ...string) ([]ItemStatus, error) {
	query := url.Values{}
	for _, status := range statuses {
		if trimmed := strings.TrimSpace(status); trimmed != "" {
			query.Add("status", trimmed)
		}
	}
	var resp ItemListResponse
	err := c.do(ctx, http.MethodGet, "/api/items", query, nil, &resp)
	return resp.Items, err
}

// Health fetches the pipeline health surface.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &resp)
	return resp, err
}

// Failures lists persistent-error records, newest first.
func (c *Client) Failures(ctx context.Context, limit int) ([]Failure, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp FailureListResponse
	err := c.do(ctx, http.MethodGet, "/api/failures", query, nil, &resp)
	return resp.Failures, err
}

// RetryFailure re-enqueues the item stored with failure id.
func (c *Client) RetryFailure(ctx context.Context, id int64) (RetryResponse, error) {
	var resp RetryResponse
	path := "/api/failures/" + strconv.FormatInt(id, 10) + "/retry"
	err := c.do(ctx, http.MethodPost, path, nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set(RequestIDHeader, requestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
		var decoded ErrorResponse
		if json.Unmarshal(payload, &decoded) == nil && decoded.Error != "" {
			apiErr.Message = decoded.Error
			apiErr.Classification = decoded.Classification
		}
		return apiErr
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
