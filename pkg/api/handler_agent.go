package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbase-labs/kbagent/pkg/models"
	"github.com/kbase-labs/kbagent/pkg/orchestrator"
)

// userID resolves the caller identity from the X-User-ID header.
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}

// Execute handles POST /api/v1/agent/execute.
func (s *Server) Execute(c *gin.Context) {
	var req models.EnterpriseAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := validateRequest(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	resp, err := s.orch.Execute(c.Request.Context(), &req, userID(c))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Stream handles POST /api/v1/agent/stream. Chunks go out as SSE
// events named by chunk type; the assembled response follows as a
// final "response" event.
func (s *Server) Stream(c *gin.Context) {
	var req models.EnterpriseAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := validateRequest(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	chunks, respCh := s.orch.Stream(c.Request.Context(), &req, userID(c))
	for chunk := range chunks {
		c.SSEvent(string(chunk.Type), chunk)
		c.Writer.Flush()
	}
	if resp := <-respCh; resp != nil {
		c.SSEvent("response", resp)
		c.Writer.Flush()
	}
}

// Classify handles POST /api/v1/agent/classify: agent-kind routing plus
// intent classification, without executing anything.
func (s *Server) Classify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	kind := orchestrator.ClassifyKind(req.Task)
	result := s.intents.Classify(c.Request.Context(), req.Task, kind, true)
	c.JSON(http.StatusOK, gin.H{
		"agent_kind": kind,
		"intent":     result,
	})
}
