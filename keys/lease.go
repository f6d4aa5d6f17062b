package keys

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goWarden/internal"
)

// Lease is a held distributed lock. Release is safe to call after the TTL
// has expired; it only deletes the lock when this holder still owns it.
type Lease interface {
	Release(ctx context.Context) error
}

// Lessor hands out time-bounded mutual-exclusion leases. TryAcquire never
// blocks waiting for a held lease: ok=false means another holder owns it.
type Lessor interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lease, bool, error)
}

// compare-and-delete so an expired holder cannot release a successor's lease
var releaseLua = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLessor implements [Lessor] with a single-key conditional set.
type RedisLessor struct {
	redis redis.UniversalClient
}

// NewRedisLessor creates a lessor backed by the given Redis client.
func NewRedisLessor(redisClient redis.UniversalClient) *RedisLessor {
	return &RedisLessor{redis: redisClient}
}

// TryAcquire attempts SET NX PX with a per-holder fencing token.
func (l *RedisLessor) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lease, bool, error) {
	token, err := internal.NewLeaseToken()
	if err != nil {
		return nil, false, err
	}

	ok, err := l.redis.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lease acquire: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{redis: l.redis, name: name, token: token}, true, nil
}

type redisLease struct {
	redis redis.UniversalClient
	name  string
	token string
}

func (l *redisLease) Release(ctx context.Context) error {
	return releaseLua.Run(ctx, l.redis, []string{l.name}, l.token).Err()
}
