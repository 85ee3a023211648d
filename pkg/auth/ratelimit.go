package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/campuskeep/campuskeep/pkg/api"
)

// Limiter is the backpressure contract for the HTTP layer.
type Limiter interface {
	Allow(ctx context.Context, actorID string, cost int) (bool, error)
}

// redisTokenBucketScript handles the token bucket algorithm atomically in Redis.
// KEYS[1] = bucket key (e.g. "limiter:u1")
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = cost (tokens to consume)
// ARGV[4] = current unix timestamp (seconds)
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisLimiter shares one token bucket per actor across all nodes.
type RedisLimiter struct {
	client *redis.Client
	rpm    int
	burst  int
}

// NewRedisLimiter creates a Redis-backed limiter at rpm requests per minute
// with the given burst capacity.
func NewRedisLimiter(client *redis.Client, rpm, burst int) *RedisLimiter {
	return &RedisLimiter{client: client, rpm: rpm, burst: burst}
}

func (l *RedisLimiter) Allow(ctx context.Context, actorID string, cost int) (bool, error) {
	key := fmt.Sprintf("limiter:%s", actorID)
	perSecond := float64(l.rpm) / 60.0
	if perSecond <= 0 {
		perSecond = 1.0
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := redisTokenBucketScript.Run(ctx, l.client, []string{key}, perSecond, l.burst, cost, now).Result()
	if err != nil {
		return false, fmt.Errorf("redis limiter error: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("invalid response from lua script")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

// LocalLimiter keeps per-actor token buckets in process memory. Single-node
// (lite mode) only; buckets are never evicted, which is fine for the actor
// cardinality of one campus.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rpm     int
	burst   int
}

// NewLocalLimiter creates an in-memory limiter at rpm requests per minute.
func NewLocalLimiter(rpm, burst int) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*rate.Limiter),
		rpm:     rpm,
		burst:   burst,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, actorID string, cost int) (bool, error) {
	l.mu.Lock()
	bucket, ok := l.buckets[actorID]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.burst)
		l.buckets[actorID] = bucket
	}
	l.mu.Unlock()
	return bucket.AllowN(time.Now(), cost), nil
}

// RateLimitMiddleware enforces per-actor rate limiting at the HTTP layer.
// The actor is the authenticated subject; guests share buckets per remote
// address. On limit exceeded it returns 429 with a Retry-After header.
func RateLimitMiddleware(limiter Limiter, rpm int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Fail open if no limiter configured (dev mode).
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			actorID := r.RemoteAddr
			if subject, err := GetSubject(r.Context()); err == nil && subject.ID != "" {
				actorID = subject.ID
			}

			allowed, err := limiter.Allow(r.Context(), actorID, 1)
			if err != nil {
				// Fail open on limiter errors to avoid blocking all traffic.
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				retryAfter := 60 / rpm
				if retryAfter < 1 {
					retryAfter = 1
				}
				api.WriteTooManyRequests(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
