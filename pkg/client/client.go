// Package client is a Go SDK for the task-engine HTTP API.
package client

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

	"github.com/gorilla/websocket"

	"github.com/codeai-platform/task-engine/internal/models"
)

// Client talks to a task-engine instance
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new task-engine client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SubmitResult mirrors the submission (and quote) response payload.
type SubmitResult struct {
	Task      *models.Task          `json:"task,omitempty"`
	Breakdown models.PriceBreakdown `json:"breakdown"`
	Content   *models.ContentCheck  `json:"content_check,omitempty"`
	Warnings  []string              `json:"warnings,omitempty"`
}

// WatchMessage is one frame of the watch stream.
type WatchMessage struct {
	Type  string         `json:"type"`
	Tasks []*models.Task `json:"tasks,omitempty"`
	Task  *models.Task   `json:"task,omitempty"`
	Error string         `json:"error,omitempty"`
}

// ListOptions contains options for listing tasks
type ListOptions struct {
	Owner  string // admin only
	Status string
}

// Submit submits a task specification and returns the created task with its
// price breakdown. Advisory warnings in the result do not indicate failure.
func (c *Client) Submit(ctx context.Context, spec *models.TaskSpecification) (*SubmitResult, error) {
	var result SubmitResult
	if err := c.do(ctx, "POST", "/api/v1/tasks", spec, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Quote prices a specification without creating a task.
func (c *Client) Quote(ctx context.Context, spec *models.TaskSpecification) (*SubmitResult, error) {
	var result SubmitResult
	if err := c.do(ctx, "POST", "/api/v1/price/quote", spec, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get retrieves a task by ID
func (c *Client) Get(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, "GET", fmt.Sprintf("/api/v1/tasks/%s", id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns the tasks visible to the authenticated principal
func (c *Client) List(ctx context.Context, opts ListOptions) ([]*models.Task, error) {
	query := url.Values{}
	if opts.Owner != "" {
		query.Set("owner", opts.Owner)
	}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}

	path := "/api/v1/tasks"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var tasks []*models.Task
	if err := c.do(ctx, "GET", path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// SetStatus updates a task's status (administrator principals only)
func (c *Client) SetStatus(ctx context.Context, id string, status models.TaskStatus) (*models.Task, error) {
	body := map[string]models.TaskStatus{"status": status}

	var task models.Task
	if err := c.do(ctx, "POST", fmt.Sprintf("/api/v1/tasks/%s/status", id), body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Watch opens the live task stream. The returned channel first delivers a
// snapshot frame, then one frame per lifecycle event, and closes when the
// context is cancelled or the server resets the stream (reconnect and the
// snapshot replays). Set all to watch every task (admins only).
func (c *Client) Watch(ctx context.Context, all bool) (<-chan WatchMessage, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/v1/tasks/watch"
	if all {
		wsURL += "?scope=all"
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("watch dial failed: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("watch dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	out := make(chan WatchMessage)
	go func() {
		defer close(out)
		defer conn.Close()

		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		for {
			var msg WatchMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Health checks the service health endpoint (no authentication required)
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: %s", resp.Status)
	}
	return nil
}

// do issues a request and decodes the standard {success, data, error}
// envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
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
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(payload, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		if result.Error != nil {
			return fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
		}
		return fmt.Errorf("API error: %s", resp.Status)
	}

	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}

	return nil
}
