package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestGuard(t *testing.T) (*Guard, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	g, err := NewGuard(client, Config{
		MaxAttempts:        3,
		AttemptWindow:      15 * time.Minute,
		LockDuration:       15 * time.Minute,
		SystemLockDuration: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}
	return g, mr
}

func TestLockoutThreshold(t *testing.T) {
	g, _ := newTestGuard(t)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		locked, err := g.RecordFailedAttempt(ctx, "10.0.0.1", "alice")
		if err != nil {
			t.Fatalf("RecordFailedAttempt failed: %v", err)
		}
		if locked {
			t.Fatalf("attempt %d must not trip the lock", i)
		}
	}

	locked, err := g.RecordFailedAttempt(ctx, "10.0.0.1", "alice")
	if err != nil {
		t.Fatalf("RecordFailedAttempt failed: %v", err)
	}
	if !locked {
		t.Fatal("third attempt must trip the lock")
	}

	if isLocked, _ := g.IsAccountLocked(ctx, "alice"); !isLocked {
		t.Fatal("account must be locked after threshold")
	}
	if isLocked, _ := g.IsAccountLocked(ctx, "bob"); isLocked {
		t.Fatal("other accounts are unaffected")
	}
}

func TestAttemptsScopedToIPAndUsername(t *testing.T) {
	g, _ := newTestGuard(t)
	ctx := context.Background()

	// Same username from two IPs: counters are independent.
	for i := 0; i < 2; i++ {
		if _, err := g.RecordFailedAttempt(ctx, "10.0.0.1", "alice"); err != nil {
			t.Fatalf("RecordFailedAttempt failed: %v", err)
		}
	}
	locked, err := g.RecordFailedAttempt(ctx, "10.0.0.2", "alice")
	if err != nil {
		t.Fatalf("RecordFailedAttempt failed: %v", err)
	}
	if locked {
		t.Fatal("a fresh IP must start from zero")
	}
}

func TestResetClearsCounterAndLock(t *testing.T) {
	g, _ := newTestGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := g.RecordFailedAttempt(ctx, "10.0.0.1", "alice"); err != nil {
			t.Fatalf("RecordFailedAttempt failed: %v", err)
		}
	}
	if err := g.ResetFailedAttempts(ctx, "10.0.0.1", "alice"); err != nil {
		t.Fatalf("ResetFailedAttempts failed: %v", err)
	}

	if locked, _ := g.IsAccountLocked(ctx, "alice"); locked {
		t.Fatal("reset must clear the lock")
	}
	if locked, _ := g.RecordFailedAttempt(ctx, "10.0.0.1", "alice"); locked {
		t.Fatal("reset must clear the counter")
	}
}

func TestLockExpires(t *testing.T) {
	g, mr := newTestGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := g.RecordFailedAttempt(ctx, "10.0.0.1", "alice"); err != nil {
			t.Fatalf("RecordFailedAttempt failed: %v", err)
		}
	}
	mr.FastForward(16 * time.Minute)

	if locked, _ := g.IsAccountLocked(ctx, "alice"); locked {
		t.Fatal("lock must expire with its TTL")
	}
}

func TestSystemLockout(t *testing.T) {
	g, mr := newTestGuard(t)
	ctx := context.Background()

	if locked, _ := g.IsSystemLocked(ctx); locked {
		t.Fatal("system starts unlocked")
	}
	if err := g.ActivateSystemLockout(ctx); err != nil {
		t.Fatalf("ActivateSystemLockout failed: %v", err)
	}
	if locked, _ := g.IsSystemLocked(ctx); !locked {
		t.Fatal("system must be locked after activation")
	}

	if err := g.DeactivateSystemLockout(ctx); err != nil {
		t.Fatalf("DeactivateSystemLockout failed: %v", err)
	}
	if locked, _ := g.IsSystemLocked(ctx); locked {
		t.Fatal("deactivation must lift the lockout")
	}

	// TTL expiry also lifts it.
	if err := g.ActivateSystemLockout(ctx); err != nil {
		t.Fatalf("ActivateSystemLockout failed: %v", err)
	}
	mr.FastForward(16 * time.Minute)
	if locked, _ := g.IsSystemLocked(ctx); locked {
		t.Fatal("system lockout must expire with its TTL")
	}
}

func TestUnavailableRedisWrapsSentinel(t *testing.T) {
	g, mr := newTestGuard(t)
	mr.Close()

	_, err := g.RecordFailedAttempt(context.Background(), "10.0.0.1", "alice")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
