package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// maxSnippetLen caps per-source snippets carried in metadata.
	maxSnippetLen = 500
	// maxToolOutput caps any tool's textual output.
	maxToolOutput = 10 * 1024
)

// backendClient posts JSON requests to a knowledge-retrieval backend.
type backendClient struct {
	baseURL string
	http    *http.Client
}

func newBackendClient(baseURL string) *backendClient {
	return &backendClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// postJSON sends the payload to path and decodes the JSON response into out.
func (c *backendClient) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}

// truncate caps s at max bytes, appending an ellipsis marker when cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// marshalOutput renders a tool payload as its JSON output string, capped.
func marshalOutput(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("failed to encode output: %v", err)
	}
	return truncate(string(data), maxToolOutput)
}
