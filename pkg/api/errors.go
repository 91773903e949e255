package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbase-labs/kbagent/pkg/config"
)

// respondError shapes an error response by mode: develop exposes the
// underlying message on 5xx, production replaces it with a generic one.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", status, "error", err,
			"request_id", c.GetString(requestIDKey))
		if s.mode == config.ModeProduction {
			msg = "internal server error"
		}
	}
	c.JSON(status, gin.H{
		"error":      msg,
		"request_id": c.GetString(requestIDKey),
	})
}
