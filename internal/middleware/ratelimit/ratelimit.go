package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type bucket struct {
	tokens   float64
	lastFill time.Time
}

type Config struct {
	RequestsPerMinute int
	Burst             int
	Logger            *zap.Logger
}

// Limiter implements a token-bucket rate limit keyed by project, falling
// back to the client IP when no project is supplied.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
	logger  *zap.Logger
}

func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 120
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute / 4
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    float64(cfg.RequestsPerMinute) / 60.0,
		burst:   float64(cfg.Burst),
		logger:  cfg.Logger,
	}
}

func (l *Limiter) allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastFill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := projectKey(c)
		if key == "" {
			key = "ip:" + c.IP()
		}
		if !l.allow(key) {
			l.logger.Warn("rate limit exceeded", zap.String("key", key))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded, please retry later",
			})
		}
		return c.Next()
	}
}

func projectKey(c *fiber.Ctx) string {
	// Every endpoint carries the tenant as a query parameter, never in the body.
	if projectID := c.Query("project_id"); projectID != "" {
		return "project:" + projectID
	}
	return ""
}
