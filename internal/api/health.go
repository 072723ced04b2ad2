package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler handles the liveness endpoint
type Handler struct {
	Version string
	started time.Time
}

// NewHandler creates a liveness handler.
func NewHandler(version string) *Handler {
	return &Handler{Version: version, started: time.Now()}
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// HealthHandler returns a simple health check handler
func (h *Handler) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.Version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}
