package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	rdb *redis.Client

	prefix string
	// ttl applies to per-minute buckets only; totals never expire.
	ttl time.Duration

	bucket string // "minute" (default) or "none"
}

type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
	return func(s *Redis) { s.prefix = strings.Trim(prefix, ":") }
}

func WithTTL(d time.Duration) RedisOption {
	return func(s *Redis) { s.ttl = d }
}

func WithBucket(bucket string) RedisOption {
	return func(s *Redis) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	s := &Redis{
		rdb:    rdb,
		prefix: "refgate:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Redis) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", ev.Outcome, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, ev.Outcome, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *Redis) Totals(ctx context.Context) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats field %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}
