package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"realtime-voice-agent/backend/internal/broker"
	"realtime-voice-agent/backend/pkg/config"
	"realtime-voice-agent/backend/pkg/health"
	"realtime-voice-agent/backend/pkg/logger"
	"realtime-voice-agent/backend/pkg/resilience"
	"realtime-voice-agent/backend/pkg/secrets"
	"realtime-voice-agent/backend/pkg/validator"
	"realtime-voice-agent/backend/shared/observability"
	"realtime-voice-agent/backend/shared/redis"
)

// ServiceName identifies the broker in traces and metrics.
const ServiceName = "realtime-session-broker"

// Container holds all the dependencies for the broker
type Container struct {
	Config    *config.Config
	Logger    *logger.Logger
	Secrets   secrets.Manager
	Redis     *redis.RedisClient // nil when the quota is kept in memory
	Quota     broker.QuotaStore
	Metrics   *observability.Metrics
	Broker    *broker.Service
	Health    *health.Checker
	Validator *validator.OpenAPIValidator

	closers []func(context.Context) error
}

// Overrides replaces parts of the container, mostly for tests.
type Overrides struct {
	Secrets  secrets.Manager
	Upstream broker.Sessions
	Quota    broker.QuotaStore
}

// NewLogger builds the process logger from config.
func NewLogger(cfg *config.Config) *logger.Logger {
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.JSON = cfg.Logging.Format != "text"
	return logger.New(logCfg)
}

// New creates a new dependency injection container
func New(cfg *config.Config, overrides *Overrides) (*Container, error) {
	if overrides == nil {
		overrides = &Overrides{}
	}

	log := NewLogger(cfg)
	logger.SetGlobal(log)

	c := &Container{Config: cfg, Logger: log}

	shutdownTracing, err := observability.SetupTracing(ServiceName, cfg.Observability.TracingEnabled, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	c.closers = append(c.closers, shutdownTracing)

	metrics, err := observability.SetupMetrics(ServiceName, cfg.Observability.MetricsEnabled)
	if err != nil {
		return nil, c.abort(fmt.Errorf("failed to set up metrics: %w", err))
	}
	c.Metrics = metrics
	c.closers = append(c.closers, metrics.Shutdown)

	// Secrets
	c.Secrets = overrides.Secrets
	if c.Secrets == nil {
		vm, err := secrets.NewVaultManager(secrets.VaultConfigFrom(cfg), log)
		if err != nil {
			return nil, c.abort(fmt.Errorf("failed to create secrets manager: %w", err))
		}
		c.Secrets = vm
		c.closers = append(c.closers, func(context.Context) error {
			vm.Close()
			return nil
		})
	}

	// Quota store
	c.Quota = overrides.Quota
	if c.Quota == nil {
		c.Quota = c.newQuotaStore()
	}

	upstream := overrides.Upstream
	if upstream == nil {
		upstream = broker.NewUpstreamClient(cfg.OpenAI.BaseURL, &http.Client{Timeout: cfg.Server.Timeout})
	}
	c.Broker = broker.NewService(broker.OptionsFrom(cfg), upstream, c.Secrets, c.Quota, metrics, log)

	c.Validator, err = validator.NewOpenAPIValidator(cfg.Observability.OpenAPISchemaPath)
	if err != nil {
		return nil, c.abort(fmt.Errorf("failed to load OpenAPI schema: %w", err))
	}

	c.Health = c.newHealthChecker()
	return c, nil
}

// newQuotaStore picks Redis when configured and reachable, otherwise an
// in-memory store.
func (c *Container) newQuotaStore() broker.QuotaStore {
	if c.Config.Quota.RedisURL != "" {
		client, err := redis.NewRedisClient(c.Config.Quota.RedisURL)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err = client.Ping(ctx)
			cancel()
			if err == nil {
				c.Redis = client
				c.closers = append(c.closers, func(context.Context) error { return client.Close() })
				c.Logger.Info("session quota backed by redis")
				return client
			}
			_ = client.Close()
		}
		c.Logger.Warn("redis unavailable, keeping session quota in memory", "error", err.Error())
	}

	mem := broker.NewMemoryQuota()
	c.closers = append(c.closers, func(context.Context) error {
		mem.Close()
		return nil
	})
	return mem
}

func (c *Container) newHealthChecker() *health.Checker {
	checker := health.NewChecker(c.Logger, 30*time.Second)

	checker.RegisterCheck("credential", true, func(ctx context.Context) (health.Status, string, error) {
		if c.Broker.HasCredential(ctx) {
			return health.StatusUp, "realtime API key is configured", nil
		}
		return health.StatusDown, "realtime API key is missing", errors.New("OPENAI_API_KEY is not set")
	})

	checker.RegisterCheck("upstream", false, func(context.Context) (health.Status, string, error) {
		state := c.Broker.Breaker().GetState()
		if state == resilience.StateClosed {
			return health.StatusUp, "circuit closed", nil
		}
		return health.StatusDegraded, "circuit " + string(state), nil
	})
	checker.AttachDetails("upstream", c.Broker.Breaker().GetMetrics)

	if c.Redis != nil {
		checker.RegisterPingCheck("redis", false, c.Redis.Ping)
	}
	return checker
}

// abort releases whatever was set up before err and returns err.
func (c *Container) abort(err error) error {
	_ = c.Close(context.Background())
	return err
}

// Close releases everything in reverse order of construction.
func (c *Container) Close(ctx context.Context) error {
	if c.Health != nil {
		c.Health.Stop()
	}

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
