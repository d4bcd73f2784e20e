package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/callback_once.lua
var callbackOnceScript string

type Client struct {
	rdb        *redis.Client
	onceScript *redis.Script
}

// NewClient creates a new Redis client with the once-guard script loaded.
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
		rdb:        rdb,
		onceScript: redis.NewScript(callbackOnceScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ClaimCallback claims the once-guard for a callback delivery of a
// merchant-transaction id. First delivery gets true; duplicates within the
// TTL get false and can short-circuit without touching the database. The
// database's conditional transition stays the correctness mechanism; this
// only sheds duplicate work.
func (c *Client) ClaimCallback(ctx context.Context, merchantTxID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("callback:%s", merchantTxID)

	result, err := c.onceScript.Run(ctx, c.rdb, []string{key}, int64(ttl.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("callback once script failed: %w", err)
	}

	claimed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return claimed == 1, nil
}

// ReleaseCallback drops the once-guard so a re-verification can run again,
// used when processing after a claim fails and should be retried.
func (c *Client) ReleaseCallback(ctx context.Context, merchantTxID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("callback:%s", merchantTxID)).Err()
}

// StoreRefundKey remembers the idempotency key derived for an order's
// refund so a retried refund reuses the same key at the gateway.
func (c *Client) StoreRefundKey(ctx context.Context, orderID int64, key string, ttl time.Duration) error {
	return c.rdb.SetNX(ctx, fmt.Sprintf("refundkey:%d", orderID), key, ttl).Err()
}

// GetRefundKey returns a previously stored refund idempotency key, or ""
// when none exists.
func (c *Client) GetRefundKey(ctx context.Context, orderID int64) (string, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("refundkey:%d", orderID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
