package api

import (
	"fmt"

	"github.com/kbase-labs/kbagent/pkg/config"
	"github.com/kbase-labs/kbagent/pkg/models"
)

// validateRequest checks wire-level constraints before orchestration.
func validateRequest(req *models.EnterpriseAgentRequest) error {
	if req.MaxSteps < 0 || req.MaxSteps > config.MaxStepsHardCap {
		return fmt.Errorf("max_steps must be between 0 and %d", config.MaxStepsHardCap)
	}
	if req.Language != "" && !req.Language.IsValid() {
		return fmt.Errorf("unsupported language: %s", req.Language)
	}
	if req.AgentKind != "" && !req.AgentKind.IsValid() {
		return fmt.Errorf("unknown agent kind: %s", req.AgentKind)
	}
	for kind := range req.AgentTimeouts {
		if !kind.IsValid() {
			return fmt.Errorf("unknown agent kind in agent_timeouts: %s", kind)
		}
	}
	return nil
}

// classifyRequest is the body of POST /classify.
type classifyRequest struct {
	Task     string          `json:"task" binding:"required"`
	Language models.Language `json:"language,omitempty"`
}
