package tools

import (
	"context"
	"fmt"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// retrievalHit is the common result row shape returned by the vector,
// graph, and IMS backends.
type retrievalHit struct {
	Content     string   `json:"content,omitempty"`
	Source      string   `json:"source,omitempty"`
	Score       float64  `json:"score,omitempty"`
	Entities    []string `json:"entities,omitempty"`
	Relations   []string `json:"relations,omitempty"`
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title,omitempty"`
	Status      string   `json:"status,omitempty"`
	Description string   `json:"description,omitempty"`
}

type retrievalResponse struct {
	Results []retrievalHit `json:"results"`
}

// sourcesFromHits builds the metadata sources list with snippet caps.
func sourcesFromHits(hits []retrievalHit) []any {
	sources := make([]any, 0, len(hits))
	for _, h := range hits {
		if h.Source == "" {
			continue
		}
		sources = append(sources, map[string]any{
			"source":  h.Source,
			"title":   h.Title,
			"snippet": truncate(h.Content, maxSnippetLen),
			"score":   h.Score,
		})
	}
	return sources
}

// VectorSearchTool queries the vector store backend.
type VectorSearchTool struct {
	client *backendClient
}

// NewVectorSearchTool creates the vector_search tool against the given
// backend base URL.
func NewVectorSearchTool(baseURL string) *VectorSearchTool {
	return &VectorSearchTool{client: newBackendClient(baseURL)}
}

func (t *VectorSearchTool) Name() string { return "vector_search" }

func (t *VectorSearchTool) Description() string {
	return "Semantic search over the knowledge base. Returns the most relevant document chunks for a query."
}

func (t *VectorSearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":    map[string]any{"type": "string", "description": "Search query text"},
			"top_k":    map[string]any{"type": "integer", "minimum": 1, "maximum": 20, "description": "Number of results (default 5)"},
			"language": map[string]any{"type": "string", "enum": []any{"auto", "en", "ko", "ja"}},
		},
		"required": []any{"query"},
	}
}

func (t *VectorSearchTool) Execute(ctx context.Context, call CallContext, args map[string]any) (*models.ToolResult, error) {
	topK := intArg(args, "top_k", 5)
	language := stringArg(args, "language", string(call.Language))

	var resp retrievalResponse
	err := t.client.postJSON(ctx, "/query", map[string]any{
		"text":     args["query"],
		"top_k":    topK,
		"language": language,
	}, &resp)
	if err != nil {
		return &models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return &models.ToolResult{
		Success:  true,
		Output:   marshalOutput(resp),
		Metadata: map[string]any{"sources": sourcesFromHits(resp.Results)},
	}, nil
}

// GraphQueryTool queries the graph store backend.
type GraphQueryTool struct {
	client *backendClient
}

// NewGraphQueryTool creates the graph_query tool.
func NewGraphQueryTool(baseURL string) *GraphQueryTool {
	return &GraphQueryTool{client: newBackendClient(baseURL)}
}

func (t *GraphQueryTool) Name() string { return "graph_query" }

func (t *GraphQueryTool) Description() string {
	return "Query the knowledge graph for entities, relations, or paths between concepts."
}

func (t *GraphQueryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":      map[string]any{"type": "string", "description": "Graph query text"},
			"query_type": map[string]any{"type": "string", "enum": []any{"entity", "relation", "path"}},
			"top_k":      map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
		},
		"required": []any{"query"},
	}
}

func (t *GraphQueryTool) Execute(ctx context.Context, _ CallContext, args map[string]any) (*models.ToolResult, error) {
	var resp retrievalResponse
	err := t.client.postJSON(ctx, "/query", map[string]any{
		"text":       args["query"],
		"query_type": stringArg(args, "query_type", "entity"),
		"top_k":      intArg(args, "top_k", 5),
	}, &resp)
	if err != nil {
		return &models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return &models.ToolResult{
		Success:  true,
		Output:   marshalOutput(resp),
		Metadata: map[string]any{"sources": sourcesFromHits(resp.Results)},
	}, nil
}

// IMSSearchTool searches the issue management system.
type IMSSearchTool struct {
	client *backendClient
}

// NewIMSSearchTool creates the ims_search tool.
func NewIMSSearchTool(baseURL string) *IMSSearchTool {
	return &IMSSearchTool{client: newBackendClient(baseURL)}
}

func (t *IMSSearchTool) Name() string { return "ims_search" }

func (t *IMSSearchTool) Description() string {
	return "Search the issue management system for issues matching a query and optional filters."
}

func (t *IMSSearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":   map[string]any{"type": "string", "description": "Issue search text"},
			"filters": map[string]any{"type": "object", "description": "Field filters, e.g. {\"status\": \"open\"}"},
		},
		"required": []any{"query"},
	}
}

func (t *IMSSearchTool) Execute(ctx context.Context, call CallContext, args map[string]any) (*models.ToolResult, error) {
	filters, _ := args["filters"].(map[string]any)
	if filters == nil {
		filters = map[string]any{}
	}
	if call.UserID != "" {
		// Backend applies user scoping when the filter asks for it.
		filters["_user_id"] = call.UserID
	}
	var resp retrievalResponse
	err := t.client.postJSON(ctx, "/search", map[string]any{
		"text":    args["query"],
		"filters": filters,
	}, &resp)
	if err != nil {
		return &models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	sources := make([]any, 0, len(resp.Results))
	for _, h := range resp.Results {
		if h.ID == "" {
			continue
		}
		sources = append(sources, map[string]any{
			"source":  "ims#" + h.ID,
			"title":   h.Title,
			"snippet": truncate(h.Description, maxSnippetLen),
		})
	}
	return &models.ToolResult{
		Success:  true,
		Output:   marshalOutput(resp),
		Metadata: map[string]any{"sources": sources},
	}, nil
}

// DocumentReadTool reads a document chunk via the document reader backend.
type DocumentReadTool struct {
	client *backendClient
}

// NewDocumentReadTool creates the document_read tool.
func NewDocumentReadTool(baseURL string) *DocumentReadTool {
	return &DocumentReadTool{client: newBackendClient(baseURL)}
}

func (t *DocumentReadTool) Name() string { return "document_read" }

func (t *DocumentReadTool) Description() string {
	return "Read the content of a knowledge-base document by id, optionally a specific chunk."
}

func (t *DocumentReadTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"document_id": map[string]any{"type": "string"},
			"chunk_index": map[string]any{"type": "integer", "minimum": 0},
			"max_length":  map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []any{"document_id"},
	}
}

func (t *DocumentReadTool) Execute(ctx context.Context, _ CallContext, args map[string]any) (*models.ToolResult, error) {
	var resp struct {
		Title       string         `json:"title"`
		Content     string         `json:"content"`
		TotalChunks int            `json:"total_chunks"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}
	err := t.client.postJSON(ctx, "/read", map[string]any{
		"document_id": args["document_id"],
		"chunk_index": intArg(args, "chunk_index", 0),
		"max_length":  intArg(args, "max_length", maxToolOutput),
	}, &resp)
	if err != nil {
		return &models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	docID, _ := args["document_id"].(string)
	return &models.ToolResult{
		Success: true,
		Output:  truncate(resp.Content, maxToolOutput),
		Metadata: map[string]any{
			"title":        resp.Title,
			"total_chunks": resp.TotalChunks,
			"sources": []any{map[string]any{
				"source": fmt.Sprintf("%s#c%d", docID, intArg(args, "chunk_index", 0)),
				"title":  resp.Title,
			}},
		},
	}, nil
}

// intArg reads an integer argument tolerating JSON float64 decoding.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
