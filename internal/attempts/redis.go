package attempts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "leadgen:attempts:"
	DefaultTTL = 7 * 24 * time.Hour
)

var _ Tracker = (*Redis)(nil)

// Redis keeps counts in Redis so they survive between runs. Each key expires
// TTL after its last failure.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client. A zero ttl means DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func key(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

func (r *Redis) Count(ctx context.Context, id int64) (int, error) {
	n, err := r.client.Get(ctx, key(id)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("attempts count %d: %w", id, err)
	}
	return n, nil
}

func (r *Redis) Fail(ctx context.Context, id int64) (int, error) {
	k := key(id)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("attempts fail %d: %w", id, err)
	}
	return int(incr.Val()), nil
}

func (r *Redis) Reset(ctx context.Context, id int64) error {
	if err := r.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("attempts reset %d: %w", id, err)
	}
	return nil
}
