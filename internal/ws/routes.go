package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "realtime-voice-agent/backend/pkg/errors"
	"realtime-voice-agent/backend/pkg/logger"
)

// NewRouter builds the feed server: GET /ws, GET /transcript and GET /health.
func NewRouter(hub *Hub, src SnapshotSource, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(logger.Middleware(log))
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryWithLogger())

	r.GET("/ws", func(c *gin.Context) {
		ServeWs(hub, c)
	})
	r.GET("/transcript", func(c *gin.Context) {
		c.JSON(http.StatusOK, FrameFrom(src.Snapshot()))
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": hub.ClientCount()})
	})
	return r
}
