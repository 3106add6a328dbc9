package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Commands is the slice of the Redis API the limiter uses. *redis.Client
// satisfies it.
type Commands interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ Commands = (*redis.Client)(nil)

// LoginLimiter throttles login attempts per client IP over a fixed
// window. It exists to slow credential stuffing, not to be a precise
// quota; on a Redis outage it fails open so logins stay available.
type LoginLimiter struct {
	client Commands
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewLoginLimiter builds a limiter. limit <= 0 disables throttling.
func NewLoginLimiter(client Commands, limit int, window time.Duration, logger *zap.Logger) *LoginLimiter {
	return &LoginLimiter{client: client, limit: limit, window: window, logger: logger}
}

// Allow reports whether another login attempt from ip is permitted.
func (l *LoginLimiter) Allow(ctx context.Context, ip string) bool {
	if l == nil || l.client == nil || l.limit <= 0 {
		return true
	}

	count, err := l.client.Incr(ctx, attemptKey(ip)).Result()
	if err != nil {
		l.logger.Warn("login limiter unavailable", zap.Error(err))
		return true
	}
	if count == 1 {
		// First attempt in a fresh window starts the window clock.
		if err := l.client.Expire(ctx, attemptKey(ip), l.window).Err(); err != nil {
			l.logger.Warn("login limiter expire failed", zap.Error(err))
		}
	}
	return count <= int64(l.limit)
}

// Reset clears the attempt counter for ip, typically after a
// successful login.
func (l *LoginLimiter) Reset(ctx context.Context, ip string) {
	if l == nil || l.client == nil {
		return
	}
	if err := l.client.Del(ctx, attemptKey(ip)).Err(); err != nil {
		l.logger.Warn("login limiter reset failed", zap.Error(err))
	}
}

func attemptKey(ip string) string {
	return fmt.Sprintf("login_attempts:%s", ip)
}
