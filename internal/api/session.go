package api

import (
	"context"
	"net/http"

	"realtime-voice-agent/backend/internal/realtime"
	"realtime-voice-agent/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// SessionCreator issues realtime session descriptors.
type SessionCreator interface {
	CreateSession(ctx context.Context, clientKey string) (*realtime.SessionDescriptor, error)
}

// SessionHandler serves POST /api/session.
type SessionHandler struct {
	sessions SessionCreator
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessions SessionCreator) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// CreateSession exchanges the server credential for an ephemeral session.
// Failures are left on the gin context for the error middleware to render.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	clientKey := middleware.GetClientKey(c.Request.Context())
	if clientKey == "" {
		clientKey = c.ClientIP()
	}

	desc, err := h.sessions.CreateSession(c.Request.Context(), clientKey)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            desc.ID,
		"model":         desc.Model,
		"client_secret": desc.ClientSecret,
	})
}

// RegisterRoutes registers the session routes
func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/session", h.CreateSession)
}
