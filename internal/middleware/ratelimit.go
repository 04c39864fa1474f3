package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	RateLimitKeyPrefix = "ratelimit:"
	BlockedIPKeyPrefix = "blocked_ip:"
)

// RedisLimiter is a fixed-window per-IP counter shared by every instance.
// An IP that overruns the window is blocked for BlockFor.
type RedisLimiter struct {
	Client   *redis.Client
	Limit    int
	Window   time.Duration
	BlockFor time.Duration
	Logger   *slog.Logger
}

// check counts one request from ip. It returns false with the time to wait
// when the request must be refused.
func (l *RedisLimiter) check(ctx context.Context, ip string) (bool, int, time.Duration, error) {
	blockedKey := BlockedIPKeyPrefix + ip
	if l.BlockFor > 0 {
		ttl, err := l.Client.TTL(ctx, blockedKey).Result()
		if err != nil {
			return true, 0, 0, err
		}
		if ttl > 0 {
			return false, 0, ttl, nil
		}
	}

	key := RateLimitKeyPrefix + ip
	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, 0, err
	}

	count := int(incr.Val())
	if count <= l.Limit {
		return true, l.Limit - count, 0, nil
	}
	if l.BlockFor > 0 {
		if err := l.Client.Set(ctx, blockedKey, "1", l.BlockFor).Err(); err != nil {
			return false, 0, l.Window, err
		}
		l.Logger.Warn("ip blocked for excessive requests", "ip", ip, "count", count)
		return false, 0, l.BlockFor, nil
	}
	return false, 0, l.Window, nil
}

// Middleware fails open when Redis is unreachable.
func (l *RedisLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		ok, remaining, wait, err := l.check(r.Context(), ip)
		if err != nil {
			l.Logger.Warn("rate limit check failed", "ip", ip, "error", err)
		}
		if !ok {
			tooManyRequests(w, "Rate limit exceeded. Please try again later.", wait)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		next.ServeHTTP(w, r)
	})
}

