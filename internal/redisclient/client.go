package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/otp_attempt.lua
var otpAttemptScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	attemptScript *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		attemptScript: redis.NewScript(otpAttemptScript),
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func otpAttemptKey(email, purpose string) string {
	return fmt.Sprintf("otp_attempts:%s:%s", purpose, email)
}

// RegisterOtpAttempt atomically counts one verification attempt for the pair
// and returns the count inside the current window.
func (c *Client) RegisterOtpAttempt(ctx context.Context, email, purpose string, window time.Duration) (int64, error) {
	result, err := c.attemptScript.Run(ctx, c.rdb,
		[]string{otpAttemptKey(email, purpose)}, window.Milliseconds()).Result()
	if err != nil {
		return 0, fmt.Errorf("otp attempt script failed: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}
	return count, nil
}

// ResetOtpAttempts clears the attempt counter of the pair
func (c *Client) ResetOtpAttempts(ctx context.Context, email, purpose string) error {
	return c.rdb.Del(ctx, otpAttemptKey(email, purpose)).Err()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the value stored for key, if any
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// AcquireLock acquires a distributed lock owned by owner
func (c *Client) AcquireLock(ctx context.Context, lockKey, owner string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), owner, ttl).Result()
}

// ReleaseLock releases a distributed lock if owner still holds it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, owner string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, owner).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
