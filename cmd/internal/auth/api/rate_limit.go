package authapi

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLimiter enforces a per-IP sliding window over login attempts
// using a redis sorted set keyed by client address.
//
// The limiter is best-effort: when redis is unreachable it fails open,
// because a cache outage must not lock every user out.
type LoginLimiter struct {
	log    *slog.Logger
	rdb    redis.UniversalClient
	max    int
	window time.Duration
}

// NewLoginLimiter builds a limiter allowing max attempts per window.
func NewLoginLimiter(log *slog.Logger, rdb redis.UniversalClient, max int, window time.Duration) *LoginLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &LoginLimiter{log: log, rdb: rdb, max: max, window: window}
}

// Allow records one attempt from ip and reports whether it is within
// the window budget.
func (l *LoginLimiter) Allow(ctx context.Context, ip string, now time.Time) bool {
	if l == nil || l.rdb == nil || ip == "" {
		return true
	}

	key := "reptrack:login:" + ip
	cutoff := now.Add(-l.window).UnixNano()

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Error("auth.login.throttle.fail", "err", err)
		return true
	}
	return card.Val() <= int64(l.max)
}
