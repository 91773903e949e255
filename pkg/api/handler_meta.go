package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// Kinds handles GET /api/v1/agent/kinds.
func (s *Server) Kinds(c *gin.Context) {
	type kindInfo struct {
		Kind        string   `json:"kind"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Tools       []string `json:"tools"`
	}
	out := make([]kindInfo, 0)
	for _, inst := range s.agents.List() {
		out = append(out, kindInfo{
			Kind:        string(inst.Kind),
			Name:        inst.Name,
			Description: inst.Description,
			Tools:       inst.ToolNames,
		})
	}
	c.JSON(http.StatusOK, gin.H{"kinds": out})
}

// Tools handles GET /api/v1/agent/tools.
func (s *Server) Tools(c *gin.Context) {
	type toolInfo struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Schema      map[string]any `json:"schema"`
	}
	out := make([]toolInfo, 0)
	for _, t := range s.tools.List() {
		out = append(out, toolInfo{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	c.JSON(http.StatusOK, gin.H{"tools": out})
}
