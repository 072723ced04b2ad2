package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"realtime-voice-agent/backend/internal/realtime"
	"realtime-voice-agent/backend/pkg/errors"
	"realtime-voice-agent/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	desc      *realtime.SessionDescriptor
	err       error
	clientKey string
}

func (f *fakeSessions) CreateSession(_ context.Context, clientKey string) (*realtime.SessionDescriptor, error) {
	f.clientKey = clientKey
	return f.desc, f.err
}

func newTestRouter(sessions SessionCreator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestIDMiddleware(), errors.ErrorHandler())
	NewSessionHandler(sessions).RegisterRoutes(r.Group("/api"))
	r.GET("/health", NewHandler("test").HealthHandler)
	return r
}

func post(r http.Handler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/session", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	r.ServeHTTP(w, req)
	return w
}

func TestCreateSessionOK(t *testing.T) {
	fake := &fakeSessions{desc: &realtime.SessionDescriptor{
		ID:           "sess_1",
		Model:        "gpt-4o-realtime-preview-2024-12-17",
		ClientSecret: realtime.ClientSecret{Value: "ek_1", ExpiresAt: 42},
	}}

	w := post(newTestRouter(fake))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "192.0.2.7", fake.clientKey)

	var body struct {
		ID           string `json:"id"`
		Model        string `json:"model"`
		ClientSecret struct {
			Value     string `json:"value"`
			ExpiresAt int64  `json:"expires_at"`
		} `json:"client_secret"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "sess_1", body.ID)
	assert.Equal(t, "ek_1", body.ClientSecret.Value)
	assert.Equal(t, int64(42), body.ClientSecret.ExpiresAt)
}

func TestCreateSessionFailureContract(t *testing.T) {
	fake := &fakeSessions{err: errors.NewError(http.StatusUnauthorized, errors.CodeUpstream, "failed to create session").
		WithDetails(json.RawMessage(`{"error":{"message":"bad key"}}`))}

	w := post(newTestRouter(fake))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "failed to create session", body["error"])
	assert.Equal(t, map[string]any{"error": map[string]any{"message": "bad key"}}, body["details"])
}

func TestHealthHandler(t *testing.T) {
	r := newTestRouter(&fakeSessions{})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
