package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/web3-frozen/ousd-analytics/internal/metrics"
)

// Redis is a Store shared by every replica, plus alert dedup keys.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(redisURL, password string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Redis{rdb: rdb, prefix: "ousd-analytics:"}, nil
}

// Close shuts down the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues("redis", "miss").Inc()
		return false, nil
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("redis", "error").Inc()
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	metrics.CacheLookups.WithLabelValues("redis", "hit").Inc()
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.rdb.Set(ctx, r.prefix+key, b, ttl).Err()
}

// AlreadySent reports whether key has been recorded. Redis errors count as
// sent so an outage cannot cause an alert storm.
func (r *Redis) AlreadySent(ctx context.Context, key string) bool {
	exists, err := r.rdb.Exists(ctx, r.prefix+key).Result()
	return err != nil || exists > 0
}

// Sent reports whether key has been recorded, surfacing Redis errors.
func (r *Redis) Sent(ctx context.Context, key string) (bool, error) {
	exists, err := r.rdb.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup lookup %s: %w", key, err)
	}
	return exists > 0, nil
}

// Record marks key as sent permanently (no expiry).
func (r *Redis) Record(ctx context.Context, key string) {
	r.rdb.Set(ctx, r.prefix+key, "1", 0) // 0 = no expiry
}

// Clear removes a dedup key so the alert can fire again when the condition resets.
func (r *Redis) Clear(ctx context.Context, key string) {
	r.rdb.Del(ctx, r.prefix+key) //nolint:errcheck
}
