package router

// addOpenAPIValidation validates requests against the container's schema
// and serves the schema document.
func (r *Router) addOpenAPIValidation() {
	v := r.Container.Validator
	if v == nil {
		r.Logger.Warn("OpenAPI validator not configured, skipping validation")
		return
	}

	r.Engine.GET("/api/docs/openapi.yaml", v.SchemaHandler())
	r.Engine.Use(v.Middleware())

	schema := r.Config.Observability.OpenAPISchemaPath
	if schema == "" {
		schema = "embedded"
	}
	r.Logger.Info("OpenAPI validation enabled", "schema", schema, "url", "/api/docs/openapi.yaml")
}
