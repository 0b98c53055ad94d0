package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/AnshRaj112/eyeglaze/pkg/clientip"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// RateLimitWindow is the fixed counting window per client.
	RateLimitWindow = 120 * time.Second
	// RateLimitMaxRequests is how many requests a client may make per window.
	RateLimitMaxRequests = 60
	// RateLimitKeyPrefix is prepended (after the namespace) to the client IP.
	RateLimitKeyPrefix = "ratelimit:"

	redisLimitTimeout = 500 * time.Millisecond
)

// RedisRateLimit counts requests per client IP in redis. Redis failures let
// the request through.
type RedisRateLimit struct {
	rdb       redis.Cmdable
	namespace string
	limit     int
	window    time.Duration
	log       *zap.Logger
}

func NewRedisRateLimit(rdb redis.Cmdable, namespace string, log *zap.Logger) *RedisRateLimit {
	return &RedisRateLimit{
		rdb:       rdb,
		namespace: namespace,
		limit:     RateLimitMaxRequests,
		window:    RateLimitWindow,
		log:       log,
	}
}

func (l *RedisRateLimit) key(ip string) string {
	return l.namespace + ":" + RateLimitKeyPrefix + ip
}

// allow increments the client's counter and reports the new count. The
// window starts with the first request. A counter without an expiry, left
// by an EXPIRE that failed after its INCR, gets one on the next request.
func (l *RedisRateLimit) allow(ctx context.Context, ip string) (int64, error) {
	key := l.key(ip)
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	count := incr.Val()
	if count == 1 || ttl.Val() < 0 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (l *RedisRateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientip.RealClientIP(r)
		ctx, cancel := context.WithTimeout(r.Context(), redisLimitTimeout)
		count, err := l.allow(ctx, ip)
		cancel()
		if err != nil {
			l.log.Warn("rate limit check failed; allowing request", zap.String("ip", ip), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		remaining := int64(l.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(l.limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			writeTooMany(w, fmt.Sprintf("Rate limit exceeded. Please try again in %d seconds.", int(l.window.Seconds())))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeTooMany(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = fmt.Fprintf(w, `{"success":false,"message":%q}`, message)
}
