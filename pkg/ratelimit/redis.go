package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis is a sliding-window limiter storing each key's request timestamps
// in a sorted set scored by unix microseconds.
type Redis struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedis creates a limiter on client. Keys are stored as prefix+key.
func NewRedis(client redis.Cmdable, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

// Allow prunes stale entries, counts the rest and records the request when
// the count is below the limit.
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	k := r.prefix + key
	cutoff := strconv.FormatInt(now.Add(-r.window).UnixMicro(), 10)

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
		card = pipe.ZCard(ctx, k)
		oldest = pipe.ZRangeWithScores(ctx, k, 0, 0)
		return nil
	})
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("rate limiter read (failing open): %w", err)
	}

	count := int(card.Val())
	if count >= r.limit {
		wait := r.window
		if zs := oldest.Val(); len(zs) > 0 {
			first := time.UnixMicro(int64(zs[0].Score))
			wait = first.Add(r.window).Sub(now)
		}
		return Decision{Allowed: false, RetryAfter: retryAfter(wait)}, nil
	}

	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMicro()), Member: member})
		pipe.Expire(ctx, k, r.window)
		return nil
	})
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("rate limiter write (failing open): %w", err)
	}
	return Decision{Allowed: true, Remaining: r.limit - count - 1}, nil
}
