package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kbase-labs/kbagent/pkg/models"
	"github.com/kbase-labs/kbagent/pkg/version"
)

// maxWebContent caps fetched page content before per-call max_length.
const maxWebContent = 10 * 1024

var (
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	tagRe    = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	markupRe = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// WebFetchTool fetches a URL and optionally extracts its text content.
type WebFetchTool struct {
	http *http.Client
}

// NewWebFetchTool creates the web_fetch tool.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{http: &http.Client{Timeout: 30 * time.Second}}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch a web page by URL and return its (optionally text-extracted) content."
}

func (t *WebFetchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":          map[string]any{"type": "string", "description": "Absolute http(s) URL"},
			"extract_text": map[string]any{"type": "boolean", "description": "Strip HTML markup (default true)"},
			"max_length":   map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []any{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, _ CallContext, args map[string]any) (*models.ToolResult, error) {
	rawURL, _ := args["url"].(string)
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid url: %s", rawURL)}, nil
	}

	title, content, contentType, err := t.Fetch(ctx, rawURL, boolArg(args, "extract_text", true))
	if err != nil {
		return &models.ToolResult{Success: false, Error: err.Error()}, nil
	}

	maxLen := intArg(args, "max_length", maxWebContent)
	if maxLen > maxWebContent {
		maxLen = maxWebContent
	}
	return &models.ToolResult{
		Success: true,
		Output:  marshalOutput(map[string]any{"url": rawURL, "title": title, "content": truncate(content, maxLen), "content_type": contentType}),
		Metadata: map[string]any{
			"sources": []any{map[string]any{"source": rawURL, "title": title}},
		},
	}, nil
}

// Fetch retrieves the URL and returns (title, content, content type).
// Exported so the orchestrator can resolve url_context through the same
// path as the tool.
func (t *WebFetchTool) Fetch(ctx context.Context, rawURL string, extractText bool) (string, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", version.Full())

	resp, err := t.http.Do(req)
	if err != nil {
		return "", "", "", fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", "", "", fmt.Errorf("fetch returned %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*maxWebContent))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	content := string(body)
	title := ""
	if m := titleRe.FindStringSubmatch(content); len(m) > 1 {
		title = strings.TrimSpace(m[1])
	}
	if extractText && strings.Contains(contentType, "html") {
		content = extractTextContent(content)
	}
	return title, truncate(content, maxWebContent), contentType, nil
}

// extractTextContent strips scripts, styles, and markup, collapsing
// whitespace.
func extractTextContent(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	text = markupRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}
