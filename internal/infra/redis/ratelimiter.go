package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/docdrop/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultStoragePerSec  int64 = 100
	defaultMetadataPerSec int64 = 200
	defaultOwnerPerSec    int64 = 25
	backoffStep                 = 10 * time.Millisecond
	backoffMax                  = 50 * time.Millisecond
	windowSeconds               = 1
	keyPrefix                   = "docdrop:ratelimit"
)

// KEYS[1] owner window, KEYS[2] backend window; ARGV[1] owner budget, ARGV[2] backend budget.
// A call rejected by the backend budget is not charged to the owner.
var allowScript = goredis.NewScript(`
local owner = redis.call("INCR", KEYS[1])
if owner == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[3])
end
if owner > tonumber(ARGV[1]) then
  return 0
end
local total = redis.call("INCR", KEYS[2])
if total == 1 then
  redis.call("EXPIRE", KEYS[2], ARGV[3])
end
if total > tonumber(ARGV[2]) then
  redis.call("DECR", KEYS[1])
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a fixed-window limiter shared by every api and cli process.
// Each backend has its own budget per wall-clock second, and every owner is held to
// ownerPerSec of it so one tenant cannot drain the backend for the rest.
type RedisRateLimiter struct {
	client      *goredis.Client
	backends    map[string]int64
	ownerPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	script      *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, budgets ratelimit.Budgets) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, budgets, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	budgets ratelimit.Budgets,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		backends: map[string]int64{
			ratelimit.BackendStorage:  orDefault(budgets.Storage, defaultStoragePerSec),
			ratelimit.BackendMetadata: orDefault(budgets.Metadata, defaultMetadataPerSec),
		},
		ownerPerSec: orDefault(budgets.PerOwner, defaultOwnerPerSec),
		now:         nowFn,
		sleep:       sleepFn,
		script:      allowScript,
	}, nil
}

func orDefault(v int, def int64) int64 {
	if v <= 0 {
		return def
	}
	return int64(v)
}

func (r *RedisRateLimiter) Allow(ctx context.Context, backend, ownerID string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalized := strings.ToLower(strings.TrimSpace(backend))
	budget, ok := r.backends[normalized]
	if !ok {
		return false, fmt.Errorf("unknown rate limit backend %q", backend)
	}
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return false, fmt.Errorf("owner id is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	window := r.now().UTC().Unix()
	keys := []string{
		fmt.Sprintf("%s:%s:owner:%s:%d", keyPrefix, normalized, owner, window),
		fmt.Sprintf("%s:%s:%d", keyPrefix, normalized, window),
	}
	result, err := r.script.Run(ctx, r.client, keys, r.ownerPerSec, budget, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until the owner has budget on backend, backing off linearly up to backoffMax.
func (r *RedisRateLimiter) Wait(ctx context.Context, backend, ownerID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, backend, ownerID)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff += backoffStep
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
