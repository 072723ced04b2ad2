package router

import (
	"realtime-voice-agent/backend/internal/api"

	"github.com/gin-gonic/gin"
)

// setupHealthRoutes registers the liveness and component health endpoints
func (r *Router) setupHealthRoutes() {
	liveness := api.NewHandler(Version)
	r.Engine.GET("/health", liveness.HealthHandler)

	components := r.Container.Health.Handler()
	r.Engine.GET("/api/health", func(c *gin.Context) {
		r.Container.Health.RunChecks(c.Request.Context())
		components(c)
	})
}
