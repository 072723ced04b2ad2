package router

import (
	"fmt"
	"net/http"
	"strings"

	"realtime-voice-agent/backend/internal/api"
	"realtime-voice-agent/backend/pkg/config"
	"realtime-voice-agent/backend/pkg/di"
	"realtime-voice-agent/backend/pkg/errors"
	"realtime-voice-agent/backend/pkg/logger"
	"realtime-voice-agent/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Version is reported by /health. Set at build time.
var Version = "dev"

// Router is the main router for the broker
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Config      *config.Config
	RateLimiter *middleware.RateLimiter
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Request id first so the request logger reuses it
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))

	opts := middleware.DefaultRateLimiterOptions()
	if cfg.Security.RateLimit > 0 {
		opts.Limit = rate.Limit(cfg.Security.RateLimit)
	}
	if cfg.Security.RateLimitBurst > 0 {
		opts.Burst = cfg.Security.RateLimitBurst
	}
	opts.Skip = func(c *gin.Context) bool { return c.Request.URL.Path == "/metrics" }
	rateLimiter := middleware.NewRateLimiter(container.Logger, opts)
	engine.Use(rateLimiter.Middleware())

	return &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Config:      cfg,
		RateLimiter: rateLimiter,
	}
}

// SetupRoutes registers all broker routes
func (r *Router) SetupRoutes() {
	r.setupHealthRoutes()

	if r.Config.Observability.MetricsEnabled {
		r.Engine.GET("/metrics", gin.WrapH(r.Container.Metrics.Handler()))
	}

	// Everything below is validated against the API schema.
	r.addOpenAPIValidation()

	sessionHandler := api.NewSessionHandler(r.Container.Broker)
	sessionHandler.RegisterRoutes(r.Engine.Group("/api"))

	r.Engine.NoRoute(notFound)
}

// notFound renders unknown routes with the same error body as every other failure.
func notFound(c *gin.Context) {
	msg := fmt.Sprintf("route %s %s not found", c.Request.Method, c.Request.URL.Path)
	c.Error(errors.NewNotFoundError(errors.CodeNotFound, msg))
	c.Abort()
}

// Close stops background work owned by the router.
func (r *Router) Close() {
	r.RateLimiter.Close()
}

// corsMiddleware allows every origin for "*" and echoes listed origins
// otherwise.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && set[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Authorization, Origin, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
