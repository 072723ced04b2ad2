// Package broker exchanges the server's long-lived API key for short-lived
// realtime session descriptors.
package broker

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"realtime-voice-agent/backend/internal/realtime"
	"realtime-voice-agent/backend/pkg/config"
	"realtime-voice-agent/backend/pkg/errors"
	"realtime-voice-agent/backend/pkg/logger"
	"realtime-voice-agent/backend/pkg/middleware"
	"realtime-voice-agent/backend/pkg/resilience"
	"realtime-voice-agent/backend/pkg/secrets"
	"realtime-voice-agent/backend/shared/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Messages returned to clients.
const (
	MsgMissingAPIKey  = "OPENAI_API_KEY is not set"
	MsgCreateFailed   = "failed to create session"
	MsgUpstreamDown   = "realtime API is unreachable"
	MsgBreakerOpen    = "realtime API is temporarily unavailable"
	MsgQuotaExceeded  = "session quota exceeded"
	MsgMalformedReply = "realtime API returned a malformed session"
)

// Outcomes recorded on the sessions counter.
const (
	OutcomeOK        = "ok"
	OutcomeNoKey     = "missing_key"
	OutcomeQuota     = "quota_exceeded"
	OutcomeUpstream  = "upstream_error"
	OutcomeTransport = "transport_error"
	OutcomeBreaker   = "breaker_open"
	OutcomeMalformed = "malformed"
	quotaKeyPrefix   = "session-quota:"
	breakerName      = "realtime-sessions"
)

// Options configures the session request sent upstream.
type Options struct {
	Model              string
	Voice              string
	Instructions       string
	Modalities         []string
	TranscriptionModel string

	QuotaLimit  int
	QuotaWindow time.Duration
}

// OptionsFrom maps application config onto Options.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Model:              cfg.OpenAI.Model,
		Voice:              cfg.OpenAI.Voice,
		Instructions:       cfg.OpenAI.Instructions,
		Modalities:         cfg.OpenAI.Modalities,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		QuotaLimit:         cfg.Quota.Limit,
		QuotaWindow:        cfg.Quota.Window,
	}
}

// Sessions creates upstream sessions.
type Sessions interface {
	CreateSession(ctx context.Context, apiKey string, req realtime.SessionRequest) (*realtime.SessionDescriptor, error)
}

// Service is the session broker.
type Service struct {
	opts     Options
	upstream Sessions
	secrets  secrets.Manager
	breaker  *resilience.CircuitBreaker
	quota    QuotaStore
	metrics  *observability.Metrics
	log      *logger.Logger
	tracer   trace.Tracer
}

// NewService wires the broker. quota may be nil when no quota applies.
func NewService(opts Options, upstream Sessions, sm secrets.Manager, quota QuotaStore, metrics *observability.Metrics, log *logger.Logger) *Service {
	cbCfg := resilience.DefaultCircuitBreakerConfig(breakerName)
	cbCfg.IsFailure = isBreakerFailure
	breaker := resilience.NewCircuitBreaker(cbCfg, log)
	if metrics != nil {
		breaker.OnStateChange(func(name string, _, to resilience.CircuitBreakerState) {
			metrics.BreakerTransition(context.Background(), name, string(to))
		})
	}

	return &Service{
		opts:     opts,
		upstream: upstream,
		secrets:  sm,
		breaker:  breaker,
		quota:    quota,
		metrics:  metrics,
		log:      log.WithComponent("broker"),
		tracer:   otel.Tracer(observability.InstrumentationName),
	}
}

// Breaker exposes the upstream circuit breaker.
func (s *Service) Breaker() *resilience.CircuitBreaker {
	return s.breaker
}

// HasCredential reports whether the upstream API key resolves.
func (s *Service) HasCredential(ctx context.Context) bool {
	return s.secrets.GetSecretWithDefault(ctx, secrets.KeyOpenAIAPIKey, "") != ""
}

// CreateSession issues one session descriptor for clientKey. Failures are
// *errors.AppError values carrying the HTTP status to return. There are no
// retries.
func (s *Service) CreateSession(ctx context.Context, clientKey string) (*realtime.SessionDescriptor, error) {
	ctx, span := s.tracer.Start(ctx, "broker.CreateSession",
		trace.WithAttributes(attribute.String("realtime.model", s.opts.Model)))
	defer span.End()

	desc, outcome, latency, err := s.createSession(ctx, clientKey)
	if s.metrics != nil {
		s.metrics.RecordSession(ctx, outcome, latency)
	}
	span.SetAttributes(attribute.String("broker.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(attribute.String("realtime.session_id", desc.ID))
	s.log.WithRequestID(middleware.GetRequestID(ctx)).WithSessionID(desc.ID).Info("session created", "model", desc.Model, "latency_ms", latency.Milliseconds())
	return desc, nil
}

func (s *Service) createSession(ctx context.Context, clientKey string) (*realtime.SessionDescriptor, string, time.Duration, error) {
	apiKey := s.secrets.GetSecretWithDefault(ctx, secrets.KeyOpenAIAPIKey, "")
	if apiKey == "" {
		s.log.Error("cannot create session", "error", MsgMissingAPIKey)
		return nil, OutcomeNoKey, 0, errors.NewInternalServerError(errors.CodeMissingAPIKey, MsgMissingAPIKey)
	}

	if err := s.checkQuota(ctx, clientKey); err != nil {
		return nil, OutcomeQuota, 0, err
	}

	var desc *realtime.SessionDescriptor
	start := time.Now()
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		desc, err = s.upstream.CreateSession(ctx, apiKey, s.sessionRequest())
		return err
	})
	latency := time.Since(start)

	var upstreamErr *UpstreamError
	switch {
	case err == nil:
	case stderrors.Is(err, resilience.ErrCircuitOpen):
		return nil, OutcomeBreaker, 0, errors.NewServiceUnavailableError(errors.CodeUnavailable, MsgBreakerOpen).Wrap(err)
	case stderrors.As(err, &upstreamErr):
		s.log.Error("realtime session API error",
			"status", upstreamErr.StatusCode,
			"body", truncate(string(upstreamErr.Body), 512),
		)
		return nil, OutcomeUpstream, latency, errors.NewError(upstreamErr.StatusCode, errors.CodeUpstream, MsgCreateFailed).
			WithDetails(upstreamErr.Details()).Wrap(err)
	case stderrors.Is(err, ErrMalformedResponse):
		return nil, OutcomeMalformed, latency, errors.NewBadGatewayError(errors.CodeUpstream, MsgMalformedReply).Wrap(err)
	default:
		return nil, OutcomeTransport, latency, errors.NewBadGatewayError(errors.CodeUpstreamFailure, MsgUpstreamDown).Wrap(err)
	}

	if desc.ClientSecret.Value == "" {
		return nil, OutcomeMalformed, latency, errors.NewBadGatewayError(errors.CodeUpstream, MsgMalformedReply)
	}
	return desc, OutcomeOK, latency, nil
}

func (s *Service) sessionRequest() realtime.SessionRequest {
	req := realtime.SessionRequest{
		Model:        s.opts.Model,
		Voice:        s.opts.Voice,
		Instructions: s.opts.Instructions,
		Modalities:   s.opts.Modalities,
	}
	if s.opts.TranscriptionModel != "" {
		req.InputAudioTranscription = &realtime.TranscriptionConfig{Model: s.opts.TranscriptionModel}
	}
	return req
}

// checkQuota fails open: a broken quota store never blocks sessions.
func (s *Service) checkQuota(ctx context.Context, clientKey string) error {
	if s.quota == nil || s.opts.QuotaLimit <= 0 {
		return nil
	}

	n, resetAt, err := s.quota.IncrWindow(ctx, quotaKeyPrefix+clientKey, s.opts.QuotaWindow)
	if err != nil {
		s.log.LogError(err, "quota store unavailable", "client", clientKey)
		return nil
	}
	if n > int64(s.opts.QuotaLimit) {
		s.log.Warn("session quota exceeded", "client", clientKey, "count", n)
		return errors.NewTooManyRequestsError(errors.CodeQuotaExceeded, MsgQuotaExceeded).WithDetails(map[string]any{
			"limit":    s.opts.QuotaLimit,
			"reset_at": resetAt.UTC().Format(time.RFC3339),
		})
	}
	return nil
}

// isBreakerFailure counts transport errors and upstream 5xx, not client
// errors the upstream rejected.
func isBreakerFailure(err error) bool {
	var upstreamErr *UpstreamError
	if stderrors.As(err, &upstreamErr) {
		return upstreamErr.StatusCode >= http.StatusInternalServerError || upstreamErr.StatusCode == http.StatusTooManyRequests
	}
	return !stderrors.Is(err, context.Canceled)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
