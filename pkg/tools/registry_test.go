package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase-labs/kbagent/pkg/models"
)

func newSchemaTool(name string) *StubTool {
	t := NewStubTool(name)
	t.Spec = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
			"top_k": map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []any{"query"},
	}
	return t
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newSchemaTool("vector_search")))

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"query": "sla policy", "top_k": 5}, false},
		// json.Marshal turns Go ints into JSON numbers; integer
		// constraints must still hold after the round trip.
		{"float top_k accepted as integer", map[string]any{"query": "x", "top_k": float64(3)}, false},
		{"missing required", map[string]any{"top_k": 5}, true},
		{"wrong type", map[string]any{"query": 42}, true},
		{"below minimum", map[string]any{"query": "x", "top_k": 0}, true},
		{"nil args fail required", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate("vector_search", tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidArguments))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRegistryValidateUnknownTool(t *testing.T) {
	r := NewRegistry()
	err := r.Validate("nope", map[string]any{})
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestRegistryGetAndList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewStubTool("vector_search")))
	require.NoError(t, r.Register(NewStubTool("graph_query")))

	tool, err := r.Get("graph_query")
	require.NoError(t, err)
	assert.Equal(t, "graph_query", tool.Name())

	_, err = r.Get("shell")
	assert.True(t, errors.Is(err, ErrToolNotFound))

	assert.Len(t, r.List(), 2)
}

func TestRegistryForKindSkipsUnregistered(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewStubTool("vector_search")))

	ts := r.ForKind(models.AgentKindRAG)
	require.Len(t, ts, 1)
	assert.Equal(t, "vector_search", ts[0].Name())
}

func TestRegistryDefinitionsFollowAllowlistOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"document_read", "graph_query", "vector_search"} {
		require.NoError(t, r.Register(NewStubTool(name)))
	}

	defs := r.Definitions(models.AgentKindRAG)
	require.Len(t, defs, 3)
	assert.Equal(t, "vector_search", defs[0].Name)
	assert.Equal(t, "graph_query", defs[1].Name)
	assert.Equal(t, "document_read", defs[2].Name)
}
