// Package cache provides a TTL'd key-value cache and atomic counters backed
// by Redis, with a stable versioned encoding for stored values.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is applied by Set when the caller passes ttl <= 0.
const DefaultTTL = time.Hour

// envelopeVersion is bumped whenever the wire encoding changes shape.
const envelopeVersion = 1

// envelope is the stable, versioned encoding wrapping every stored value.
type envelope struct {
	V     int             `json:"v"`
	Value json.RawMessage `json:"value"`
}

// Cache is a namespaced, TTL'd key-value store with atomic counters.
type Cache struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// ErrMiss is returned by Get when the key is absent, expired, or its value
// could not be decoded (a decode failure is treated as a miss, not an error).
var ErrMiss = errors.New("cache: miss")

// Get decodes the value stored at key into dst. Returns ErrMiss on absence
// or decode failure.
func (c *Cache) Get(ctx context.Context, key string, dst any) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return fmt.Errorf("cache get %q: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ErrMiss
	}
	if env.V != envelopeVersion {
		return ErrMiss
	}
	if err := json.Unmarshal(env.Value, dst); err != nil {
		return ErrMiss
	}
	return nil
}

// Set stores value under key with the given ttl. A ttl <= 0 uses DefaultTTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %q: %w", key, err)
	}
	env := envelope{V: envelopeVersion, Value: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cache encode envelope %q: %w", key, err)
	}

	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key, if present.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache remove %q: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present and unexpired.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists %q: %w", key, err)
	}
	return n > 0, nil
}

// Incr atomically increments the counter at key, setting ttl on first
// creation, and returns the new value.
func (c *Cache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache incr %q: %w", key, err)
	}

	if incr.Val() == 1 && ttl > 0 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return incr.Val(), fmt.Errorf("cache incr expire %q: %w", key, err)
		}
	}
	return incr.Val(), nil
}

// RemoveByPattern deletes all keys matching the given glob pattern, using
// SCAN so large keyspaces don't block the server.
func (c *Cache) RemoveByPattern(ctx context.Context, pattern string) error {
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache remove_by_pattern %q: %w", pattern, err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan %q: %w", pattern, err)
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache remove_by_pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// Keyspace helpers, matching the namespaced key patterns used throughout
// the queue engine, authentication, and authorization layers.

func PositionKey(queueID, userIdentifier string) string {
	return fmt.Sprintf("queue:%s:user:%s:position", queueID, userIdentifier)
}

func RateLimitKey(scope string) string {
	return fmt.Sprintf("rate_limit:%s", scope)
}

func PermissionKey(tenantID, userID, perm string) string {
	return fmt.Sprintf("permission:%s:%s:%s", tenantID, userID, perm)
}

func UserPermissionsKey(tenantID, userID string) string {
	return fmt.Sprintf("user_permissions:%s:%s", tenantID, userID)
}

func RolePermissionsKey(role string) string {
	return fmt.Sprintf("role_permissions:%s", role)
}

func JWTBlacklistKey(jti string) string {
	return fmt.Sprintf("jwt_blacklist:%s", jti)
}

func JWTTokenKey(tenantID, userID, jti string) string {
	return fmt.Sprintf("jwt_token:%s:%s:%s", tenantID, userID, jti)
}
