package loom

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
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Loom server (e.g. "http://localhost:8080").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Loom context graph API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("loom: BaseURL is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: baseURL,
		client:  httpClient,
	}, nil
}

// Preview renders a context graph without persisting anything.
func (c *Client) Preview(ctx context.Context, req RenderRequest) (*TraceRun, error) {
	var resp TraceRun
	if err := c.post(ctx, "/api/preview", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PreviewLive renders through the server's debounced scheduler. Bursts of
// calls collapse into one render for the latest graph; calls replaced by a
// newer one fail with a 409 error, detectable with IsSuperseded.
func (c *Client) PreviewLive(ctx context.Context, req RenderRequest) (*TraceRun, error) {
	var resp TraceRun
	if err := c.post(ctx, "/api/preview/live", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecuteRequest is the payload for Execute: a render request plus an
// optional project ID recorded on the persisted run.
type ExecuteRequest struct {
	RenderRequest
	ProjectID string `json:"projectId,omitempty"`
}

// Execute renders a context graph and persists the run record.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*TraceRun, error) {
	var resp TraceRun
	if err := c.post(ctx, "/api/execute", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// CreateProject stores a named graph snapshot.
func (c *Client) CreateProject(ctx context.Context, name string, state ProjectState) (*Project, error) {
	body := map[string]any{"name": name, "state": state}
	var resp Project
	if err := c.post(ctx, "/api/projects", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProject retrieves one project by ID.
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var resp Project
	if err := c.get(ctx, "/api/projects/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListProjects retrieves all projects, newest first.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	if err := c.get(ctx, "/api/projects", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// Datasets and replay
// ---------------------------------------------------------------------------

// CreateDataset stores a named collection of replay rows.
func (c *Client) CreateDataset(ctx context.Context, name string, rows []json.RawMessage) (*Dataset, error) {
	body := map[string]any{"name": name, "rows": rows}
	var resp Dataset
	if err := c.post(ctx, "/api/datasets", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDataset retrieves one dataset with its rows.
func (c *Client) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	var resp Dataset
	if err := c.get(ctx, "/api/datasets/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDatasets retrieves dataset headers (without row bodies), newest first.
func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	var resp []Dataset
	if err := c.get(ctx, "/api/datasets", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ReplayOptions are optional windowing parameters for Replay.
type ReplayOptions struct {
	Limit  int
	Offset int
}

// Replay renders a window of dataset rows against a stored project and
// returns one run summary per row. Run history is append-only; replaying
// again produces fresh runs.
func (c *Client) Replay(ctx context.Context, datasetID, projectID string, opts *ReplayOptions) ([]RunSummary, error) {
	body := map[string]any{"projectId": projectID}
	if opts != nil {
		if opts.Limit > 0 {
			body["limit"] = opts.Limit
		}
		if opts.Offset > 0 {
			body["offset"] = opts.Offset
		}
	}
	var resp []RunSummary
	if err := c.post(ctx, "/api/datasets/"+url.PathEscape(datasetID)+"/replay", body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RunHistoryOptions are optional filters for RunHistory.
type RunHistoryOptions struct {
	// RowIndex filters history to one dataset row. Nil means all rows.
	RowIndex *int
	Limit    int
}

// RunHistory retrieves run summaries for a dataset, newest first.
func (c *Client) RunHistory(ctx context.Context, datasetID string, opts *RunHistoryOptions) ([]RunSummary, error) {
	params := url.Values{}
	if opts != nil {
		if opts.RowIndex != nil {
			params.Set("rowIndex", strconv.Itoa(*opts.RowIndex))
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
	}

	path := "/api/datasets/" + url.PathEscape(datasetID) + "/runs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp []RunSummary
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetRun retrieves one run record with its full trace.
func (c *Client) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var resp RunRecord
	if err := c.get(ctx, "/api/runs/"+url.PathEscape(runID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompareRuns compares two persisted runs and returns a drift verdict with
// a line diff.
func (c *Client) CompareRuns(ctx context.Context, runA, runB string) (*RunComparison, error) {
	path := "/api/runs/" + url.PathEscape(runA) + "/compare/" + url.PathEscape(runB)
	var resp RunComparison
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// CreateSession stores a chat transcript for chat:// resolvers.
func (c *Client) CreateSession(ctx context.Context, title string, messages []ChatMessage) (*Session, error) {
	body := map[string]any{"title": title, "messages": messages}
	var resp Session
	if err := c.post(ctx, "/api/sessions", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSession retrieves one session by ID.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var resp Session
	if err := c.get(ctx, "/api/sessions/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AppendSessionMessages appends messages to an existing session and returns
// the updated transcript.
func (c *Client) AppendSessionMessages(ctx context.Context, id string, messages []ChatMessage) (*Session, error) {
	body := map[string]any{"messages": messages}
	var resp Session
	if err := c.post(ctx, "/api/sessions/"+url.PathEscape(id)+"/messages", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Data sources and health
// ---------------------------------------------------------------------------

// CreateDataSource registers an external connection. The URL is sealed
// server-side and never returned by any endpoint.
func (c *Client) CreateDataSource(ctx context.Context, name, kind, connectionURL string) (*DataSource, error) {
	body := map[string]any{"name": name, "kind": kind, "url": connectionURL}
	var resp DataSource
	if err := c.post(ctx, "/api/datasources", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDataSources retrieves data sources, newest first.
func (c *Client) ListDataSources(ctx context.Context) ([]DataSource, error) {
	var resp []DataSource
	if err := c.get(ctx, "/api/datasources", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Health checks the server's health status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("loom: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("loom: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("loom: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("loom: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("loom: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("loom: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
