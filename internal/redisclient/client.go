package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookstore/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/extend_lock.lua
var extendLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	extendScript  *redis.Script
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

	return NewWithClient(rdb), nil
}

// NewWithClient wraps an existing go-redis client
func NewWithClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		extendScript:  redis.NewScript(extendLockScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AcquireLock takes a distributed lock and returns the owner token needed
// to release it. ok is false when somebody else holds the lock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.New().String()
	ok, err = c.rdb.SetNX(ctx, lockName(lockKey), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases the lock if token still owns it.
// Returns false when the lock expired or was taken over.
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) (bool, error) {
	n, err := c.releaseScript.Run(ctx, c.rdb, []string{lockName(lockKey)}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("release lock script failed: %w", err)
	}
	return n == 1, nil
}

// ExtendLock pushes the expiry of a lock the caller still owns
func (c *Client) ExtendLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	n, err := c.extendScript.Run(ctx, c.rdb, []string{lockName(lockKey)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("extend lock script failed: %w", err)
	}
	return n == 1, nil
}

func lockName(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// ClaimIdempotencyKey records key with TTL. It returns false if the key was
// already claimed.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), time.Now().Unix(), ttl).Result()
}

// ReleaseIdempotencyKey forgets a claim so the work can be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}

func bookKey(bookID int64) string {
	return fmt.Sprintf("book:%d", bookID)
}

// GetBookDetail reads a cached book detail. ok is false on a cache miss.
func (c *Client) GetBookDetail(ctx context.Context, bookID int64) (*models.BookDetail, bool, error) {
	raw, err := c.rdb.Get(ctx, bookKey(bookID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var detail models.BookDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, false, fmt.Errorf("decode cached book %d: %w", bookID, err)
	}
	return &detail, true, nil
}

// SetBookDetail caches a book detail. Per-caller fields must be cleared by the caller.
func (c *Client) SetBookDetail(ctx context.Context, detail *models.BookDetail, ttl time.Duration) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, bookKey(detail.BookID), data, ttl).Err()
}

// InvalidateBooks drops cached details for the given books
func (c *Client) InvalidateBooks(ctx context.Context, bookIDs ...int64) error {
	if len(bookIDs) == 0 {
		return nil
	}
	keys := make([]string, len(bookIDs))
	for i, id := range bookIDs {
		keys[i] = bookKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
