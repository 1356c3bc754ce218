package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares cooldowns between bot instances. Each user is one key set with
// NX and a TTL of the window, so the check-and-set is atomic per user.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = strings.Trim(prefix, ":") }
}

func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{rdb: rdb, prefix: "refgate:cooldown"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) TryAcquire(ctx context.Context, userID int64, window time.Duration) (Result, error) {
	if window <= 0 {
		return Result{Granted: true}, nil
	}
	key := fmt.Sprintf("%s:%d", r.prefix, userID)

	// Two rounds cover a key that expires between SETNX and PTTL.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.rdb.SetNX(ctx, key, 1, window).Result()
		if err != nil {
			return Result{}, fmt.Errorf("cooldown set: %w", err)
		}
		if ok {
			return Result{Granted: true}, nil
		}

		ttl, err := r.rdb.PTTL(ctx, key).Result()
		if err != nil {
			return Result{}, fmt.Errorf("cooldown ttl: %w", err)
		}
		if ttl > 0 {
			return Result{Wait: ttl}, nil
		}
	}
	return Result{Wait: time.Millisecond}, nil
}
