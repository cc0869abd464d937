package runtimeclient

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

	"github.com/cuemby/llamafarm/pkg/apperr"
)

// Client talks HTTP to one Universal Runtime instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client against baseURL (e.g. "http://127.0.0.1:11535").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed implements ingest.Embedder: list<text> -> list<vector>, via the
// runtime's OpenAI-shaped /v1/embeddings endpoint.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: "default", Input: texts})
	if err != nil {
		return nil, apperr.ConfigError("encoding embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.DependencyError("building embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.DependencyError("calling universal runtime embeddings endpoint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.DependencyError(fmt.Sprintf("embeddings endpoint returned %d", resp.StatusCode), nil)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.DependencyError("decoding embeddings response", err)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors, nil
}

// ChatMessage is one turn of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatStream streams a completion for messages, invoking onToken for
// every incremental piece of assistant text. It blocks until the
// stream ends (runtime sends "data: [DONE]") or ctx is cancelled.
// Framing follows the OpenAI-compatible chat-completions SSE
// convention, parsed the way
// _examples/WessleyAI-wessley-mvp/cmd/chat/main.go scans an NDJSON/SSE
// body line by line.
func (c *Client) ChatStream(ctx context.Context, model string, messages []ChatMessage, onToken func(string)) error {
	reqBody, err := json.Marshal(map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return apperr.ConfigError("encoding chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return apperr.DependencyError("building chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.DependencyError("calling universal runtime chat endpoint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.DependencyError(fmt.Sprintf("chat endpoint returned %d", resp.StatusCode), nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				onToken(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return apperr.DependencyError("reading chat stream", err)
	}
	return nil
}

// downloadEvent is one line of the runtime's model-download progress
// feed (§4.4): {n, total} until the final {local_dir} or {error}.
type downloadEvent struct {
	N        int64  `json:"n"`
	Total    int64  `json:"total"`
	LocalDir string `json:"local_dir"`
	Error    string `json:"error"`
}

// Fetch implements orchestrator.ModelFetcher: proxies a HuggingFace-
// style model download through the runtime, forwarding byte-progress
// to report and returning the local directory the runtime unpacked the
// artifact into.
func (c *Client) Fetch(ctx context.Context, modelID, quantization string, report func(n, total int64)) (string, error) {
	q := url.Values{"model_id": {modelID}}
	if quantization != "" {
		q.Set("quantization", quantization)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models/download?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("building download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Returned verbatim: http.Client wraps *net.OpError in a
		// *url.Error, both of which satisfy net.Error, which is how
		// orchestrator.classifyDownloadError tells a network failure
		// from a body-parse failure (spec.md §8 test S5).
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model download endpoint returned %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt downloadEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			return "", fmt.Errorf("parse error: malformed download event %q: %w", truncate(line, 80), err)
		}
		if evt.Error != "" {
			return "", fmt.Errorf("parse error: runtime reported %s", evt.Error)
		}
		if evt.LocalDir != "" {
			return evt.LocalDir, nil
		}
		report(evt.N, evt.Total)
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("parse error: download stream ended before a local_dir event")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
