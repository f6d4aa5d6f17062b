// Package limiters contains the Redis-backed brute force protections: the
// per-account lockout guard and the system-wide lockout switch.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis failures of the lockout guard. Callers decide
// the failure posture; login fails closed on it.
var ErrUnavailable = errors.New("lockout state unavailable")

// Redis key shapes. Attempt counters are scoped to (ip, username) so one
// attacker cannot lock an account for everyone, while the lock itself is
// per-account.
const (
	attemptsKeyFormat = "login_attempts:%s:%s" // ip, username
	accountLockFormat = "account_lock:%s"      // username
	systemLockKey     = "global_lockout"
)

// Config holds lockout thresholds and durations.
type Config struct {
	// MaxAttempts is the number of failed attempts within AttemptWindow
	// that trips the account lock.
	MaxAttempts int
	// AttemptWindow is how long a failure counter lives without new
	// failures.
	AttemptWindow time.Duration
	// LockDuration is how long a tripped account lock holds.
	LockDuration time.Duration
	// SystemLockDuration is how long an operator-activated system lockout
	// holds.
	SystemLockDuration time.Duration
}

// Guard tracks failed login attempts in Redis and trips per-account and
// system-wide locks. All state lives in Redis with TTLs, so locks clear
// themselves and every instance sees the same counters.
type Guard struct {
	redis  redis.UniversalClient
	config Config
}

// NewGuard creates a lockout guard.
func NewGuard(redisClient redis.UniversalClient, cfg Config) (*Guard, error) {
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("lockout max attempts must be >= 1")
	}
	if cfg.AttemptWindow <= 0 || cfg.LockDuration <= 0 || cfg.SystemLockDuration <= 0 {
		return nil, fmt.Errorf("lockout durations must be positive")
	}
	return &Guard{redis: redisClient, config: cfg}, nil
}

// RecordFailedAttempt counts one failed login for the (ip, username) pair
// and reports whether the account lock tripped on this attempt. The first
// failure arms the counter's expiry window.
func (g *Guard) RecordFailedAttempt(ctx context.Context, ip, username string) (locked bool, err error) {
	key := fmt.Sprintf(attemptsKeyFormat, ip, username)

	n, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 1 {
		if err := g.redis.Expire(ctx, key, g.config.AttemptWindow).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if n < int64(g.config.MaxAttempts) {
		return false, nil
	}

	lockKey := fmt.Sprintf(accountLockFormat, username)
	if err := g.redis.Set(ctx, lockKey, "locked", g.config.LockDuration).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return true, nil
}

// IsAccountLocked reports whether the account lock is currently held.
func (g *Guard) IsAccountLocked(ctx context.Context, username string) (bool, error) {
	n, err := g.redis.Exists(ctx, fmt.Sprintf(accountLockFormat, username)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// ResetFailedAttempts clears the failure counter and any account lock.
// Called on successful authentication.
func (g *Guard) ResetFailedAttempts(ctx context.Context, ip, username string) error {
	err := g.redis.Del(ctx,
		fmt.Sprintf(attemptsKeyFormat, ip, username),
		fmt.Sprintf(accountLockFormat, username),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ActivateSystemLockout halts all logins across every instance for the
// configured duration. An operator-facing emergency brake.
func (g *Guard) ActivateSystemLockout(ctx context.Context) error {
	if err := g.redis.Set(ctx, systemLockKey, "locked", g.config.SystemLockDuration).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsSystemLocked reports whether the system-wide lockout is active.
func (g *Guard) IsSystemLocked(ctx context.Context) (bool, error) {
	n, err := g.redis.Exists(ctx, systemLockKey).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// DeactivateSystemLockout lifts the system-wide lockout before its TTL
// expires.
func (g *Guard) DeactivateSystemLockout(ctx context.Context) error {
	if err := g.redis.Del(ctx, systemLockKey).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
