// Package api exposes the HTTP surface: agent execution (unary and
// SSE streaming), classification, registry listings, and health.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kbase-labs/kbagent/pkg/agent"
	"github.com/kbase-labs/kbagent/pkg/config"
	"github.com/kbase-labs/kbagent/pkg/intent"
	"github.com/kbase-labs/kbagent/pkg/orchestrator"
	"github.com/kbase-labs/kbagent/pkg/store"
	"github.com/kbase-labs/kbagent/pkg/tools"
)

// Server wires the orchestrator and registries into HTTP handlers.
// db is optional; the health endpoint degrades gracefully without it.
type Server struct {
	orch    *orchestrator.Orchestrator
	agents  *agent.Registry
	tools   *tools.Registry
	intents *intent.Classifier
	db      *store.Client
	mode    config.Mode
}

// NewServer creates the API server.
func NewServer(orch *orchestrator.Orchestrator, agents *agent.Registry, toolReg *tools.Registry, intents *intent.Classifier, db *store.Client, mode config.Mode) *Server {
	return &Server{
		orch:    orch,
		agents:  agents,
		tools:   toolReg,
		intents: intents,
		db:      db,
		mode:    mode,
	}
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	if s.mode == config.ModeProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(), securityHeaders())

	r.GET("/healthz", s.Healthz)

	v1 := r.Group("/api/v1/agent")
	{
		v1.POST("/execute", s.Execute)
		v1.POST("/stream", s.Stream)
		v1.POST("/classify", s.Classify)
		v1.GET("/kinds", s.Kinds)
		v1.GET("/tools", s.Tools)
	}
	return r
}
