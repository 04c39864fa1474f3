package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/AnshRaj112/palchat-backend/pkg/clientip"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTTL       = 30 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// KeyedLimiter hands out one token bucket per key. Buckets idle for longer
// than limiterIdleTTL are dropped.
type KeyedLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewKeyedLimiter(limit rate.Limit, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		limit:     limit,
		burst:     burst,
		entries:   make(map[string]*limiterEntry),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// PerMinute builds a limiter allowing n requests a minute with a burst of n.
func PerMinute(n int) *KeyedLimiter {
	return NewKeyedLimiter(rate.Limit(float64(n)/60), n)
}

func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	now := k.now()
	if now.Sub(k.lastSweep) > limiterSweepInterval {
		for id, e := range k.entries {
			if now.Sub(e.lastUse) > limiterIdleTTL {
				delete(k.entries, id)
			}
		}
		k.lastSweep = now
	}
	e, ok := k.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
	}
	e.lastUse = now
	k.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

func (k *KeyedLimiter) Burst() int { return k.burst }

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// ClientIP resolves the address rate limits are keyed on. Set it once at
// startup when the server runs behind a trusted proxy.
var ClientIP = clientip.RealClientIP

func ByIP(r *http.Request) string {
	return "ip:" + ClientIP(r)
}

// BySessionUser charges the signed-in user, falling back to the client IP.
func BySessionUser(r *http.Request) string {
	if s, ok := SessionFrom(r.Context()); ok {
		return "user:" + s.UserID()
	}
	return ByIP(r)
}

// RateLimit rejects requests once the caller's bucket is empty.
func RateLimit(l *KeyedLimiter, key KeyFunc, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Burst()))
			if !l.Allow(key(r)) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				tooManyRequests(w, message, 0)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tooManyRequests(w http.ResponseWriter, message string, retryAfter time.Duration) {
	body := map[string]interface{}{
		"success": false,
		"message": message,
	}
	if retryAfter > 0 {
		secs := int(retryAfter.Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		body["retry_after"] = secs
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(body)
}
