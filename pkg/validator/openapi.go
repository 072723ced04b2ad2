package validator

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"realtime-voice-agent/backend/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// DefaultSchema is the broker's API description.
//
//go:embed openapi.yaml
var DefaultSchema []byte

type schema struct {
	raw    []byte
	doc    *openapi3.T
	router routers.Router
}

// OpenAPIValidator validates requests against an OpenAPI document
type OpenAPIValidator struct {
	path    string
	current atomic.Pointer[schema]
}

// NewOpenAPIValidator loads the schema at schemaPath, or the embedded
// schema when schemaPath is empty.
func NewOpenAPIValidator(schemaPath string) (*OpenAPIValidator, error) {
	v := &OpenAPIValidator{path: schemaPath}
	if err := v.ReloadSchema(); err != nil {
		return nil, err
	}
	return v, nil
}

func compile(raw []byte) (*schema, error) {
	doc, err := openapi3.NewLoader().LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI schema: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build OpenAPI router: %w", err)
	}
	return &schema{raw: raw, doc: doc, router: router}, nil
}

// ReloadSchema re-reads the schema. The previous one stays active on error.
func (v *OpenAPIValidator) ReloadSchema() error {
	raw := DefaultSchema
	if v.path != "" {
		b, err := os.ReadFile(v.path)
		if err != nil {
			return fmt.Errorf("read OpenAPI schema %s: %w", v.path, err)
		}
		raw = b
	}

	s, err := compile(raw)
	if err != nil {
		return err
	}
	v.current.Store(s)
	return nil
}

// Middleware rejects requests that a described operation does not accept.
// Paths the document does not describe pass through.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, params, err := v.current.Load().router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: params,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			c.Error(errors.NewBadRequestError(errors.CodeBadRequest, "invalid request").WithDetails(firstLine(err.Error())))
			c.Abort()
			return
		}

		c.Next()
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// SchemaHandler serves the raw schema document.
func (v *OpenAPIValidator) SchemaHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", v.current.Load().raw)
	}
}
