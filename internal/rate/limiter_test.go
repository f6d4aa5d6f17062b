package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) *Limiter {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l, err := NewLimiter(client, Config{Limit: limit, Window: window})
	if err != nil {
		t.Fatalf("NewLimiter failed: %v", err)
	}
	return l
}

func TestAllowWithinLimit(t *testing.T) {
	l := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "fp"); err != nil {
			t.Fatalf("request %d should pass: %v", i+1, err)
		}
	}

	err := l.Allow(ctx, "fp")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if retryAfter := AsRetryAfter(err); retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("unreasonable retry-after %s", retryAfter)
	}
}

func TestFingerprintsAreIndependent(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := l.Allow(ctx, "token-a"); err != nil {
		t.Fatalf("first fingerprint should pass: %v", err)
	}
	if err := l.Allow(ctx, "token-b"); err != nil {
		t.Fatalf("second fingerprint should pass: %v", err)
	}
	if err := l.Allow(ctx, "token-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestWindowSlides(t *testing.T) {
	l := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	base := time.Now()
	now := base
	l.now = func() time.Time { return now }

	if err := l.Allow(ctx, "fp"); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	if err := l.Allow(ctx, "fp"); err != nil {
		t.Fatalf("second request should pass: %v", err)
	}
	if err := l.Allow(ctx, "fp"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// After the window passes, old entries fall out of the set.
	now = base.Add(61 * time.Second)
	if err := l.Allow(ctx, "fp"); err != nil {
		t.Fatalf("request after window should pass: %v", err)
	}
}

func TestRetryAfterOnForeignError(t *testing.T) {
	if AsRetryAfter(errors.New("boom")) != 0 {
		t.Fatal("foreign errors carry no retry-after")
	}
	if AsRetryAfter(nil) != 0 {
		t.Fatal("nil error carries no retry-after")
	}
}
