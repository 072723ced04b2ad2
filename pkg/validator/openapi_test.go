package validator

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"realtime-voice-agent/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := NewOpenAPIValidator("")
	require.NoError(t, err)

	r := gin.New()
	r.Use(errors.ErrorHandler(), v.Middleware())
	r.POST("/api/session", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/docs/openapi.yaml", v.SchemaHandler())
	r.GET("/unlisted", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestEmbeddedSchemaLoads(t *testing.T) {
	v, err := NewOpenAPIValidator("")
	require.NoError(t, err)
	assert.NotNil(t, v.current.Load().doc.Paths.Find("/api/session"))
}

func TestSessionPostWithoutBodyPasses(t *testing.T) {
	r := newTestEngine(t)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/session", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionPostWithWrongBodyFails(t *testing.T) {
	r := newTestEngine(t)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`[1,2]`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), errors.CodeBadRequest)
}

func TestUnlistedRouteSkipsValidation(t *testing.T) {
	r := newTestEngine(t)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/unlisted", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSchemaHandler(t *testing.T) {
	r := newTestEngine(t)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/docs/openapi.yaml", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "createSession")
}

func TestFailedReloadKeepsPreviousSchema(t *testing.T) {
	v, err := NewOpenAPIValidator("")
	require.NoError(t, err)
	before := v.current.Load()

	v.path = filepath.Join(t.TempDir(), "missing.yaml")
	require.Error(t, v.ReloadSchema())
	assert.Same(t, before, v.current.Load())
}
