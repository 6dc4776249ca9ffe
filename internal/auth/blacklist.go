package auth

import (
	"context"
	"time"

	"github.com/queueforge/vqueue/internal/cache"
)

// CacheBlacklist implements Blacklist on top of internal/cache: a
// blacklisted jti is a cache key whose TTL matches the token's own
// remaining lifetime, so entries self-expire without a sweep.
type CacheBlacklist struct {
	Cache *cache.Cache
}

func (b *CacheBlacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	return b.Cache.Set(ctx, cache.JWTBlacklistKey(jti), true, ttl)
}

func (b *CacheBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	return b.Cache.Exists(ctx, cache.JWTBlacklistKey(jti))
}
