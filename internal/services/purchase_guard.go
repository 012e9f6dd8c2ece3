package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fanzone-tickets/internal/status"

	"github.com/redis/go-redis/v9"
)

// PurchaseGuard rejects a second purchase submission by the same user for the
// same event while the first one is still within the dedup window.
type PurchaseGuard struct {
	redis  redis.Cmdable
	window time.Duration
	logger *slog.Logger
}

func NewPurchaseGuard(redisClient redis.Cmdable, window time.Duration, logger *slog.Logger) *PurchaseGuard {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &PurchaseGuard{redis: redisClient, window: window, logger: logger}
}

func purchaseKey(userID, eventID string) string {
	return fmt.Sprintf("dedup:purchase:%s:%s", userID, eventID)
}

// Acquire marks the submission as in flight. It fails open when Redis is
// unreachable; the database constraints still prevent double issuance. A nil
// guard admits everything.
func (g *PurchaseGuard) Acquire(ctx context.Context, userID, eventID string) error {
	if g == nil {
		return nil
	}
	ok, err := g.redis.SetNX(ctx, purchaseKey(userID, eventID), 1, g.window).Result()
	if err != nil {
		g.logger.Warn("purchase dedup unavailable", "error", err, "user_id", userID, "event_id", eventID)
		return nil
	}
	if !ok {
		return status.ErrPurchaseInProgress
	}
	return nil
}

// Release ends the window early, typically after a rejected purchase.
func (g *PurchaseGuard) Release(ctx context.Context, userID, eventID string) {
	if g == nil {
		return
	}
	if err := g.redis.Del(ctx, purchaseKey(userID, eventID)).Err(); err != nil {
		g.logger.Warn("purchase dedup release failed", "error", err, "user_id", userID, "event_id", eventID)
	}
}
