package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"realtime-voice-agent/backend/pkg/errors"
	"realtime-voice-agent/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the per-client token buckets
type RateLimiterOptions struct {
	Limit rate.Limit
	Burst int
	// ExpiryDuration is how long an idle client's bucket is kept
	ExpiryDuration  time.Duration
	CleanupInterval time.Duration
	// KeyFunc picks the bucket for a request. Defaults to the client IP.
	KeyFunc func(*gin.Context) string
	// Skip exempts a request from limiting
	Skip func(*gin.Context) bool
}

// DefaultRateLimiterOptions allows 5 req/s with bursts of 10 per client IP
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:           5,
		Burst:           10,
		ExpiryDuration:  time.Hour,
		CleanupInterval: time.Minute,
		KeyFunc:         clientIP,
	}
}

func clientIP(c *gin.Context) string { return c.ClientIP() }

type bucket struct {
	*rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a gin middleware holding one token bucket per client
type RateLimiter struct {
	opts RateLimiterOptions
	log  *logger.Logger

	mu      sync.Mutex
	buckets map[string]*bucket

	sweeper sync.Once
	stopped sync.Once
	stop    chan struct{}
}

// NewRateLimiter creates a rate limiter. Only the first options value is used.
func NewRateLimiter(log *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = clientIP
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	return &RateLimiter{
		opts:    opts,
		log:     log,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	r.sweeper.Do(func() { go r.sweepLoop() })

	return func(c *gin.Context) {
		if r.opts.Skip != nil && r.opts.Skip(c) {
			c.Next()
			return
		}

		key := r.opts.KeyFunc(c)
		b := r.bucket(key)
		now := time.Now()
		if b.AllowN(now, 1) {
			c.Next()
			return
		}

		retry := retryAfter(b.Limiter, now)
		r.log.Warn("rate limit exceeded",
			"client", key,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"retry_after_s", retry,
		)
		c.Header("Retry-After", strconv.Itoa(retry))
		c.Header("X-RateLimit-Limit", strconv.Itoa(r.opts.Burst))
		c.Error(errors.NewTooManyRequestsError(errors.CodeRateLimited, "too many requests, please try again later"))
		c.Abort()
	}
}

// retryAfter returns whole seconds until one token is available, at least 1.
func retryAfter(l *rate.Limiter, now time.Time) int {
	res := l.ReserveN(now, 1)
	if !res.OK() {
		return 1
	}
	delay := res.DelayFrom(now)
	res.CancelAt(now)
	secs := int(math.Ceil(delay.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Close stops the sweeper.
func (r *RateLimiter) Close() {
	r.stopped.Do(func() { close(r.stop) })
}

func (r *RateLimiter) bucket(key string) *bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{Limiter: rate.NewLimiter(r.opts.Limit, r.opts.Burst)}
		r.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b
}

func (r *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(r.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *RateLimiter) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, b := range r.buckets {
		if now.Sub(b.lastSeen) > r.opts.ExpiryDuration {
			delete(r.buckets, key)
		}
	}
}
