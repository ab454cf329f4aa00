package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coreagent/runtime/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Returns a minimal, safe response
// suitable for unauthenticated access — only this process's own
// dependencies (the conversation index) are checked, never the embedding
// application's LLM provider or MCP servers.
func (s *Server) healthHandler(c *gin.Context) {
	if s.index == nil {
		c.JSON(http.StatusOK, healthResponse{
			Status:  healthStatusHealthy,
			Version: version.Full(),
			Index:   "disabled",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := s.index.CheckHealth(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, healthResponse{
			Status:  healthStatusDegraded,
			Version: version.Full(),
			Index:   healthStatusUnhealthy,
		})
		return
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:  healthStatusHealthy,
		Version: version.Full(),
		Index:   healthStatusHealthy,
	})
}
