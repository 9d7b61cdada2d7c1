// Package client provides a Go client for the voxpath HTTP API.
//
// It covers grid and hierarchical path searches, async search tasks, world
// edits and graph introspection. Errors returned by the server surface as
// *APIError.
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
	"time"

	"github.com/sanonone/voxpath/pkg/chunkcache"
	"github.com/sanonone/voxpath/pkg/hpa"
)

// --- Custom Errors ---

// APIError represents an error returned by the voxpath API (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// --- JSON Structs ---

// Point is a block position as [x, y, z].
type Point [3]int

// PathRequest is the body of a grid search.
type PathRequest struct {
	From    Point    `json:"from"`
	To      Point    `json:"to"`
	Radius  int      `json:"radius,omitempty"`
	Chain   string   `json:"chain,omitempty"`
	Margin  *float64 `json:"margin,omitempty"`
	Actions bool     `json:"actions,omitempty"`
}

// Action is one movement action reported by a dry run.
type Action struct {
	Action string `json:"action"`
	At     Point  `json:"at"`
}

// Path is the result of a grid search.
type Path struct {
	Found     bool     `json:"found"`
	Cost      float64  `json:"cost,omitempty"`
	Waypoints []Point  `json:"waypoints"`
	Blocks    []Point  `json:"blocks,omitempty"`
	Actions   []Action `json:"actions,omitempty"`
}

// HierarchicalPath is the result of a hierarchical search.
type HierarchicalPath struct {
	Found    bool    `json:"found"`
	Cost     float64 `json:"cost,omitempty"`
	Level    int     `json:"level"`
	Nodes    []Point `json:"nodes"`
	Segments int     `json:"segments"`
	Blocks   []Point `json:"blocks,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Invalidation reports what a region invalidation did.
type Invalidation struct {
	Loaded  bool            `json:"loaded"`
	Rebuilt bool            `json:"rebuilt"`
	Dirty   []hpa.RegionKey `json:"dirty"`
}

// Cluster is a cluster of the hierarchical graph.
type Cluster struct {
	ID        int32 `json:"id"`
	Level     int   `json:"level"`
	Origin    Point `json:"origin"`
	Size      int   `json:"size"`
	Height    int   `json:"height"`
	Entrances int   `json:"entrances"`
}

// Task states reported by the server.
const (
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskCancelled = "cancelled"
)

// Task represents an asynchronous path search on the server.
type Task struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	client *Client // Reference to the client for polling.
}

// --- Client ---

// Client is the Go client for a voxpath server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the server at baseURL, e.g. "http://localhost:9191".
// A non-empty token is sent as a bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// request executes one call and returns the raw body. Non-2xx responses
// become *APIError.
func (c *Client) request(ctx context.Context, method, endpoint string, payload any, accept string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil && errResp["error"] != "" {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}

// jsonRequest executes a JSON call and decodes the response into out.
func (c *Client) jsonRequest(ctx context.Context, method, endpoint string, payload, out any) error {
	respBody, err := c.request(ctx, method, endpoint, payload, "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("invalid JSON response for %s %s: %w", method, endpoint, err)
	}
	return nil
}

// Healthy reports whether the server answers its health check.
func (c *Client) Healthy(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodGet, "/healthz", nil, nil)
}

// --- Search Methods ---

// FindPath runs a grid search and waits for its result.
func (c *Client) FindPath(ctx context.Context, req PathRequest) (*Path, error) {
	var p Path
	if err := c.jsonRequest(ctx, http.MethodPost, "/v1/path", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPathAsync starts a grid search and returns its Task.
func (c *Client) FindPathAsync(ctx context.Context, req PathRequest) (*Task, error) {
	var accepted struct {
		TaskID string `json:"task_id"`
	}
	if err := c.jsonRequest(ctx, http.MethodPost, "/v1/path/async", req, &accepted); err != nil {
		return nil, err
	}
	return &Task{ID: accepted.TaskID, Status: TaskRunning, client: c}, nil
}

// FindHierarchicalPath searches the cluster graph and returns the refined route.
func (c *Client) FindHierarchicalPath(ctx context.Context, from, to Point, radius int) (*HierarchicalPath, error) {
	payload := map[string]any{"from": from, "to": to}
	if radius > 0 {
		payload["radius"] = radius
	}
	var p HierarchicalPath
	if err := c.jsonRequest(ctx, http.MethodPost, "/v1/hpa/path", payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Task Methods ---

// GetTask retrieves the state of an async search.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.jsonRequest(ctx, http.MethodGet, "/v1/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	task.client = c
	return &task, nil
}

// CancelTask cancels a running async search.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.jsonRequest(ctx, http.MethodDelete, "/v1/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	task.client = c
	return &task, nil
}

// Refresh updates the task's status by querying the server.
func (t *Task) Refresh(ctx context.Context) error {
	if t.client == nil {
		return fmt.Errorf("client is not associated with the task")
	}
	updated, err := t.client.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	t.Status = updated.Status
	t.Result = updated.Result
	t.Error = updated.Error
	return nil
}

// Wait polls until the task finishes and returns its path. A failed or
// cancelled task is an error.
func (t *Task) Wait(ctx context.Context, interval time.Duration) (*Path, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := t.Refresh(ctx); err != nil {
			return nil, err
		}
		switch t.Status {
		case TaskCompleted:
			var p Path
			if err := json.Unmarshal(t.Result, &p); err != nil {
				return nil, fmt.Errorf("invalid result for task %s: %w", t.ID, err)
			}
			return &p, nil
		case TaskFailed, TaskCancelled:
			return nil, fmt.Errorf("task %s %s: %s", t.ID, t.Status, t.Error)
		case TaskRunning:
		default:
			return nil, fmt.Errorf("unknown task status: %s", t.Status)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for task %s: %w", t.ID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// --- World and Graph Methods ---

// SetBlock changes one block and reports whether a loaded graph region
// became dirty.
func (c *Client) SetBlock(ctx context.Context, pos Point, material string) (bool, error) {
	var resp struct {
		Dirty bool `json:"dirty"`
	}
	payload := map[string]any{"pos": pos, "material": material}
	if err := c.jsonRequest(ctx, http.MethodPost, "/v1/world/block", payload, &resp); err != nil {
		return false, err
	}
	return resp.Dirty, nil
}

// Invalidate marks the graph region (x, z) dirty. With apply set the server
// rebuilds pending regions before answering.
func (c *Client) Invalidate(ctx context.Context, x, z int, apply bool) (*Invalidation, error) {
	payload := map[string]any{"x": x, "z": z, "apply": apply}
	var inv Invalidation
	if err := c.jsonRequest(ctx, http.MethodPost, "/v1/hpa/invalidate", payload, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// GraphStats returns the cluster graph counters.
func (c *Client) GraphStats(ctx context.Context) (*hpa.Stats, error) {
	var stats hpa.Stats
	if err := c.jsonRequest(ctx, http.MethodGet, "/v1/hpa/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Clusters lists the clusters of level overlapping the box [from, to].
func (c *Client) Clusters(ctx context.Context, level int, from, to Point) ([]Cluster, error) {
	q := url.Values{}
	q.Set("level", strconv.Itoa(level))
	for i, axis := range []string{"x", "y", "z"} {
		q.Set(axis+"0", strconv.Itoa(from[i]))
		q.Set(axis+"1", strconv.Itoa(to[i]))
	}
	var clusters []Cluster
	if err := c.jsonRequest(ctx, http.MethodGet, "/v1/hpa/clusters?"+q.Encode(), nil, &clusters); err != nil {
		return nil, err
	}
	return clusters, nil
}

// Dump downloads a msgpack snapshot of the graph.
func (c *Client) Dump(ctx context.Context) (*hpa.Snapshot, error) {
	body, err := c.request(ctx, http.MethodGet, "/v1/hpa/dump", nil, "application/msgpack")
	if err != nil {
		return nil, err
	}
	return hpa.ReadSnapshot(bytes.NewReader(body))
}

// CacheStats returns the chunk cache counters.
func (c *Client) CacheStats(ctx context.Context) (*chunkcache.Stats, error) {
	var stats chunkcache.Stats
	if err := c.jsonRequest(ctx, http.MethodGet, "/v1/cache/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
