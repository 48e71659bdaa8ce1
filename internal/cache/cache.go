// Package cache is the ephemeral Redis-backed layer: pull-list caches and
// remote status snapshots keyed by workspace. Everything here is
// reconstructible from the remote authority; the reset control plane flushes
// it wholesale.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every application-owned key so reset and verification
// can find them without touching anything else in the Redis instance.
const keyPrefix = "tbd:"

// Cache wraps a Redis client with application key conventions.
type Cache struct {
	client *redis.Client
}

// New connects to Redis by URL and verifies the connection.
func New(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Cache{client: client}, nil
}

// NewWithClient wraps an existing Redis client (used by tests with miniredis).
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func pullListKey(workspaceID, kind string) string {
	return fmt.Sprintf("%spull:%s:%s", keyPrefix, workspaceID, kind)
}

// SavePullList caches the last pulled record list for a workspace and kind.
func (c *Cache) SavePullList(ctx context.Context, workspaceID, kind string, records any, ttl time.Duration) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal pull list: %w", err)
	}
	if err := c.client.Set(ctx, pullListKey(workspaceID, kind), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache pull list: %w", err)
	}
	return nil
}

// PullList loads a cached pull list into out. A miss or corrupted entry
// returns false with out untouched.
func (c *Cache) PullList(ctx context.Context, workspaceID, kind string, out any) (bool, error) {
	data, err := c.client.Get(ctx, pullListKey(workspaceID, kind)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read pull list cache: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, nil
	}
	return true, nil
}

// appKeys scans for every application-owned key, optionally narrowed to one
// workspace.
func (c *Cache) appKeys(ctx context.Context, workspaceID string) ([]string, error) {
	pattern := keyPrefix + "*"
	if workspaceID != "" {
		pattern = keyPrefix + "*" + workspaceID + "*"
	}
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan cache keys: %w", err)
	}
	return keys, nil
}

// Flush deletes every application-owned key.
func (c *Cache) Flush(ctx context.Context) (int64, error) {
	return c.deleteKeys(ctx, "")
}

// FlushWorkspace deletes only keys embedding the given workspace id.
func (c *Cache) FlushWorkspace(ctx context.Context, workspaceID string) (int64, error) {
	if workspaceID == "" {
		return 0, fmt.Errorf("flush workspace: empty workspace id")
	}
	return c.deleteKeys(ctx, workspaceID)
}

func (c *Cache) deleteKeys(ctx context.Context, workspaceID string) (int64, error) {
	keys, err := c.appKeys(ctx, workspaceID)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return deleted, fmt.Errorf("delete cache keys: %w", err)
	}
	return deleted, nil
}

// CountAppKeys reports how many application-owned keys remain, used by reset
// verification.
func (c *Cache) CountAppKeys(ctx context.Context) (int, error) {
	keys, err := c.appKeys(ctx, "")
	return len(keys), err
}
