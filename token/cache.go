package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "access_token_revoked:"

// RevocationCache keeps explicitly revoked access token JTIs in Redis so the
// per-request revocation check rarely has to touch the durable store.
// Entries expire with the token they shadow; the durable store stays the
// source of truth.
type RevocationCache struct {
	redis redis.UniversalClient
}

// NewRevocationCache creates a cache backed by the given Redis client.
func NewRevocationCache(redisClient redis.UniversalClient) *RevocationCache {
	return &RevocationCache{redis: redisClient}
}

// MarkRevoked flags a JTI as revoked until ttl elapses. A non-positive ttl
// is a no-op since the token is already expired everywhere that matters.
func (c *RevocationCache) MarkRevoked(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.redis.Set(ctx, revokedKeyPrefix+jti, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("revocation cache set: %w", err)
	}
	return nil
}

// IsRevoked reports whether the JTI is flagged in the cache. A cache miss
// says nothing about the durable record.
func (c *RevocationCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.redis.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("revocation cache lookup: %w", err)
	}
	return n > 0, nil
}
