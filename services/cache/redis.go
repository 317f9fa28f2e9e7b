// Package cachesvc holds the short-lived state of the API: signed-out tokens and rate limits.
package cachesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
)

const (
	revokedTokenPrefix = "revoked_token:"
	rateLimitPrefix    = "rate_limit:"
)

// NewRedisClient connects to the configured Redis server.
func NewRedisClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "connecting to Redis")
	}
	return rdb, nil
}

type RedisDenylist struct {
	client *redis.Client
}

var _ user.TokenDenylist = (*RedisDenylist)(nil)

func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client}
}

func (d *RedisDenylist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // already expired
	}
	err := d.client.Set(ctx, revokedTokenPrefix+tokenID, 1, ttl).Err()
	return core.NewRemoteError("revoking token", err)
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, revokedTokenPrefix+tokenID).Result()
	if err != nil {
		return false, core.NewRemoteError("checking token", err)
	}
	return n > 0, nil
}

// RateLimiter counts the hits of a key in fixed windows.
type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow records a hit of key and reports whether it is within limit.
// When it is not, retryAfter is the time left in the current window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error) {
	key = rateLimitPrefix + key
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, core.NewRemoteError("counting hits", err)
	}
	// first hit of the window
	if count == 1 {
		if err = rl.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, core.NewRemoteError("setting window", err)
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}

	ttl, err := rl.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, core.NewRemoteError("reading window", err)
	}
	if ttl < 0 {
		// lost expiry (e.g. crash between INCR and EXPIRE): start a new window
		_ = rl.client.Expire(ctx, key, window).Err()
		ttl = window
	}
	return false, ttl, nil
}
