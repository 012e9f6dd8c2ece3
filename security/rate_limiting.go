package security

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per caller in fixed Redis windows.
type RateLimiter struct {
	redis  redis.Cmdable
	logger *slog.Logger
}

func NewRateLimiter(redisClient redis.Cmdable, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{redis: redisClient, logger: logger}
}

// Limit allows at most limit requests per window for each caller of scope.
// Authenticated callers are keyed by user id, anonymous ones by client IP.
// Requests pass when Redis is unavailable.
func (r *RateLimiter) Limit(scope string, limit int64, window time.Duration) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if limit <= 0 {
			return e.Next()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", scope, identity(e))
		ctx := e.Request.Context()

		count, err := r.redis.Incr(ctx, key).Result()
		if err != nil {
			r.logger.Warn("rate limiter unavailable", "error", err, "scope", scope)
			return e.Next()
		}
		if count == 1 {
			if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
				r.logger.Warn("rate limiter expire failed", "error", err, "key", key)
			}
		}
		if count > limit {
			return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
		}
		return e.Next()
	}
}

// RejectBots blocks user agents of common crawlers.
func (r *RateLimiter) RejectBots(e *core.RequestEvent) error {
	if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
		return apis.NewForbiddenError("Access denied", nil)
	}
	return e.Next()
}

func identity(e *core.RequestEvent) string {
	if e.Auth != nil {
		return "user:" + e.Auth.Id
	}
	return "ip:" + e.RealIP()
}

func isSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
