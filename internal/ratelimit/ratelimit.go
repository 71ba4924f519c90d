package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a window's budget is exhausted.
var ErrRateLimited = errors.New("rate limit exceeded")

// LimitType keys independent budgets for the same app.
type LimitType string

const (
	LimitTypeAPICall LimitType = "API_CALL"
)

// Limiter is a fixed-window counter on redis. Each (app, type) pair gets
// `limit` calls per window; counters expire with the window.
type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

// New returns a Limiter allowing `limit` calls per `window`.
func New(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, window: window}
}

// Check counts one call against the (appID, limitType) window and returns
// ErrRateLimited when the budget is exceeded. The exceeding call is counted,
// matching fixed-window semantics.
func (l *Limiter) Check(ctx context.Context, appID int64, limitType LimitType) error {
	windowStart := time.Now().Truncate(l.window).Unix()
	key := fmt.Sprintf("ratelimit:%d:%s:%d", appID, limitType, windowStart)

	pipe := l.rdb.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if count.Val() > int64(l.limit) {
		return ErrRateLimited
	}
	return nil
}
