package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/llamafarm/pkg/api"
	"github.com/cuemby/llamafarm/pkg/runtimeclient"
)

const defaultTimeout = 10 * time.Second

// Client is the CLI's handle to a running api-server process.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client targeting baseURL (e.g. "http://127.0.0.1:8088").
func New(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{}}
}

// Dataset mirrors the api-server's dataset registration shape.
type Dataset = api.Dataset

// TaskResult is the wire shape of a polled or dispatch-and-await task,
// mirroring the api-server's taskRecordResponse.
type TaskResult struct {
	TaskID    string      `json:"task_id"`
	State     string      `json:"state"`
	Result    interface{} `json:"result,omitempty"`
	Traceback string      `json:"traceback,omitempty"`
}

// ChatMessage reuses the Universal Runtime's chat message shape so the
// CLI does not need its own copy of a two-field struct.
type ChatMessage = runtimeclient.ChatMessage

type apiError struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Recovery []string `json:"recovery,omitempty"`
}

func (e *apiError) Error() string {
	if len(e.Recovery) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (try: %s)", e.Code, e.Message, strings.Join(e.Recovery, "; "))
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling api-server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return fmt.Errorf("api-server returned %s", resp.Status)
		}
		return &apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateDataset registers a named dataset.
func (c *Client) CreateDataset(ctx context.Context, name, sourcePath, databaseName string) (Dataset, error) {
	var d Dataset
	req := struct {
		Name         string `json:"name"`
		SourcePath   string `json:"source_path"`
		DatabaseName string `json:"database_name"`
	}{Name: name, SourcePath: sourcePath, DatabaseName: databaseName}
	err := c.do(ctx, http.MethodPost, "/datasets", nil, req, &d)
	return d, err
}

// ListDatasets returns every registered dataset.
func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	var list []Dataset
	err := c.do(ctx, http.MethodGet, "/datasets", nil, nil, &list)
	return list, err
}

// GetDataset fetches one dataset by name.
func (c *Client) GetDataset(ctx context.Context, name string) (Dataset, error) {
	var d Dataset
	err := c.do(ctx, http.MethodGet, "/datasets/"+url.PathEscape(name), nil, nil, &d)
	return d, err
}

// DeleteDataset removes a dataset's registration (not its files).
func (c *Client) DeleteDataset(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/datasets/"+url.PathEscape(name), nil, nil, nil)
}

// UploadDataset streams r into the dataset's source path under filename.
func (c *Client) UploadDataset(ctx context.Context, name, filename string, r io.Reader) error {
	q := url.Values{"filename": {filename}}
	u := c.baseURL + "/datasets/" + url.PathEscape(name) + "/upload?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, r)
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("uploading: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return fmt.Errorf("api-server returned %s", resp.Status)
		}
		return &apiErr
	}
	return nil
}

// ProcessDataset dispatches ingestion for a dataset and returns the
// dispatched task_id for polling (ingestion may take minutes).
func (c *Client) ProcessDataset(ctx context.Context, name string) (string, error) {
	var out map[string]string
	err := c.do(ctx, http.MethodPost, "/datasets/"+url.PathEscape(name)+"/process", nil, nil, &out)
	return out["task_id"], err
}

// PollTask fetches the current state of a dispatched task.
func (c *Client) PollTask(ctx context.Context, taskID string) (TaskResult, error) {
	var tr TaskResult
	err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, nil, &tr)
	return tr, err
}

// AwaitTask polls taskID every interval until it reaches a terminal
// state or ctx is done.
func (c *Client) AwaitTask(ctx context.Context, taskID string, interval time.Duration) (TaskResult, error) {
	for {
		tr, err := c.PollTask(ctx, taskID)
		if err != nil {
			return tr, err
		}
		switch tr.State {
		case "SUCCESS", "FAILURE", "REVOKED":
			return tr, nil
		}
		select {
		case <-ctx.Done():
			return tr, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Query dispatches a rag.query task and blocks for its result.
func (c *Client) Query(ctx context.Context, databaseName, query string, k int) (TaskResult, error) {
	var tr TaskResult
	req := struct {
		DatabaseName string `json:"database_name"`
		Query        string `json:"query"`
		K            int    `json:"k"`
	}{DatabaseName: databaseName, Query: query, K: k}
	err := c.do(ctx, http.MethodPost, "/rag/query", nil, req, &tr)
	return tr, err
}

// Stats dispatches a rag.stats task and blocks for its result.
func (c *Client) Stats(ctx context.Context, databaseName string) (TaskResult, error) {
	var tr TaskResult
	q := url.Values{"database_name": {databaseName}}
	err := c.do(ctx, http.MethodGet, "/rag/stats", q, nil, &tr)
	return tr, err
}

// Health dispatches an orchestration.health task and blocks for its
// result.
func (c *Client) Health(ctx context.Context) (TaskResult, error) {
	var tr TaskResult
	err := c.do(ctx, http.MethodGet, "/rag/health", nil, nil, &tr)
	return tr, err
}

// Chat streams a chat completion token by token via onToken, returning
// once the server signals completion or an error event arrives.
func (c *Client) Chat(ctx context.Context, model string, messages []ChatMessage, onToken func(string)) error {
	body, err := json.Marshal(struct {
		Model    string        `json:"model"`
		Messages []ChatMessage `json:"messages"`
	}{Model: model, Messages: messages})
	if err != nil {
		return fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling chat endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return fmt.Errorf("api-server returned %s", resp.Status)
		}
		return &apiErr
	}

	type chatEvent struct {
		Token string `json:"token,omitempty"`
		Done  bool   `json:"done,omitempty"`
		Error string `json:"error,omitempty"`
	}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt chatEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			continue
		}
		if evt.Error != "" {
			return fmt.Errorf("chat stream: %s", evt.Error)
		}
		if evt.Done {
			return nil
		}
		if evt.Token != "" {
			onToken(evt.Token)
		}
	}
	return scanner.Err()
}

// DownloadProgress is one event of a model download's SSE stream.
type DownloadProgress struct {
	Bytes      int64
	TotalBytes int64
	LocalDir   string
	Done       bool
	Error      string
}

// DownloadModel streams a model-download's SSE progress events via
// onProgress, returning the final local directory once the stream
// signals completion.
func (c *Client) DownloadModel(ctx context.Context, modelID, quantization string, onProgress func(DownloadProgress)) (string, error) {
	q := url.Values{"model_id": {modelID}}
	if quantization != "" {
		q.Set("quantization", quantization)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models/download?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("building download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling download endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return "", fmt.Errorf("api-server returned %s", resp.Status)
		}
		return "", &apiErr
	}

	type downloadEvent struct {
		State    string `json:"state"`
		Total    int64  `json:"total,omitempty"`
		N        int64  `json:"n,omitempty"`
		LocalDir string `json:"local_dir,omitempty"`
		Message  string `json:"message,omitempty"`
	}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt downloadEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			continue
		}
		switch evt.State {
		case "progress":
			onProgress(DownloadProgress{Bytes: evt.N, TotalBytes: evt.Total})
		case "done":
			onProgress(DownloadProgress{LocalDir: evt.LocalDir, Done: true})
			return evt.LocalDir, nil
		case "error":
			return "", fmt.Errorf("download stream: %s", evt.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("download stream closed before completion")
}
