// Package rate implements a Redis sliding-window rate limiter keyed by an
// opaque fingerprint, typically the SHA-256 of a bearer token.
package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is the sentinel wrapped by every limit rejection. Use
// [AsRetryAfter] to recover the wait hint.
var ErrRateLimited = errors.New("rate limited")

// ErrUnavailable wraps Redis failures of the limiter.
var ErrUnavailable = errors.New("rate limiter unavailable")

const rateKeyPrefix = "rate_limit:"

// RetryAfterError is returned when a request exceeds the limit. It unwraps
// to [ErrRateLimited] and carries how long the caller should wait before
// the oldest counted request leaves the window.
type RetryAfterError struct {
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RetryAfterError) Unwrap() error { return ErrRateLimited }

// AsRetryAfter extracts the wait hint from a limit rejection, or 0 if err
// is not one.
func AsRetryAfter(err error) time.Duration {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter
	}
	return 0
}

// Config holds the window shape.
type Config struct {
	// Limit is the number of requests allowed per Window.
	Limit int
	// Window is the sliding window length.
	Window time.Duration
}

// Limiter is a per-fingerprint sliding window on a Redis sorted set. Each
// allowed request is a member scored by its timestamp; the window slides
// by trimming members older than now minus Window.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// NewLimiter creates a sliding-window limiter.
func NewLimiter(redisClient redis.UniversalClient, cfg Config) (*Limiter, error) {
	if cfg.Limit < 1 {
		return nil, fmt.Errorf("rate limit must be >= 1")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("rate window must be positive")
	}
	return &Limiter{redis: redisClient, config: cfg, now: time.Now}, nil
}

// Allow records one request for the fingerprint and returns nil when it is
// within the limit, a [RetryAfterError] when it is not, or ErrUnavailable
// when Redis cannot answer.
func (l *Limiter) Allow(ctx context.Context, fingerprint string) error {
	key := rateKeyPrefix + fingerprint
	now := l.now()
	windowStart := now.Add(-l.config.Window)

	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	count := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count.Val() >= int64(l.config.Limit) {
		retryAfter := l.config.Window
		if entries := oldest.Val(); len(entries) > 0 {
			oldestAt := time.Unix(0, int64(entries[0].Score))
			retryAfter = oldestAt.Add(l.config.Window).Sub(now)
			if retryAfter < time.Second {
				retryAfter = time.Second
			}
		}
		return &RetryAfterError{RetryAfter: retryAfter}
	}

	pipe = l.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, l.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
