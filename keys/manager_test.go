package keys

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type grantLessor struct{}

func (grantLessor) TryAcquire(context.Context, string, time.Duration) (Lease, bool, error) {
	return noopLease{}, true, nil
}

type denyLessor struct{}

func (denyLessor) TryAcquire(context.Context, string, time.Duration) (Lease, bool, error) {
	return nil, false, nil
}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

func rotatingConfig(interval time.Duration, max int) Config {
	return Config{
		RotationEnabled:   true,
		RotationInterval:  interval,
		MaxHistoricalKeys: max,
	}
}

func TestInitializeGeneratesFirstKey(t *testing.T) {
	store := NewMemoryStore()
	m, err := NewManager(store, grantLessor{}, rotatingConfig(time.Hour, 3))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	material, kid := m.Current()
	if kid != "1" {
		t.Fatalf("expected kid 1, got %q", kid)
	}
	if len(material) < 64 {
		t.Fatalf("expected >= 64 bytes of key material, got %d", len(material))
	}

	persisted, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(persisted) != 1 || !bytes.Equal(persisted[0].Material, material) {
		t.Fatal("first key was not persisted")
	}
}

func TestInitializeLoadsExistingKeys(t *testing.T) {
	store := NewMemoryStore()
	for i := 0; i < 3; i++ {
		if _, err := store.Append(context.Background(), []byte("material"), time.Now()); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	m, _ := NewManager(store, grantLessor{}, rotatingConfig(time.Hour, 5))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if _, kid := m.Current(); kid != "3" {
		t.Fatalf("expected newest kid 3 as current, got %q", kid)
	}
}

func TestRotatePrunesBeyondMaxHistorical(t *testing.T) {
	store := NewMemoryStore()
	m, _ := NewManager(store, grantLessor{}, rotatingConfig(time.Nanosecond, 2))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		time.Sleep(2 * time.Nanosecond)
		if err := m.Rotate(context.Background()); err != nil {
			t.Fatalf("Rotate failed: %v", err)
		}
	}

	kids := m.RetainedKids()
	if len(kids) != 2 {
		t.Fatalf("expected 2 retained keys, got %v", kids)
	}
	if kids[len(kids)-1] != 4 {
		t.Fatalf("expected newest kid 4, got %v", kids)
	}

	// Pruned keys are gone durably too.
	persisted, _ := store.LoadAll(context.Background())
	if len(persisted) != 2 {
		t.Fatalf("expected 2 persisted keys, got %d", len(persisted))
	}

	// A token signed with a pruned kid can no longer be verified.
	if _, err := m.ByKid(context.Background(), "1"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey for pruned kid, got %v", err)
	}
}

func TestRotateSkippedWhenLeaseHeld(t *testing.T) {
	store := NewMemoryStore()
	m, _ := NewManager(store, denyLessor{}, rotatingConfig(time.Nanosecond, 3))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	time.Sleep(2 * time.Nanosecond)
	if err := m.Rotate(context.Background()); err != nil {
		t.Fatalf("Rotate with held lease should be a silent skip, got %v", err)
	}
	if kids := m.RetainedKids(); len(kids) != 1 {
		t.Fatalf("expected no rotation, got kids %v", kids)
	}
}

func TestByKidConvergesAcrossInstances(t *testing.T) {
	store := NewMemoryStore()

	a, _ := NewManager(store, grantLessor{}, rotatingConfig(time.Nanosecond, 5))
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize a failed: %v", err)
	}
	b, _ := NewManager(store, denyLessor{}, rotatingConfig(time.Hour, 5))
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize b failed: %v", err)
	}

	time.Sleep(2 * time.Nanosecond)
	if err := a.Rotate(context.Background()); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	// b has never seen kid 2; ByKid reloads from the shared store.
	material, kid := a.Current()
	if kid != "2" {
		t.Fatalf("expected current kid 2, got %q", kid)
	}
	got, err := b.ByKid(context.Background(), kid)
	if err != nil {
		t.Fatalf("ByKid after reload failed: %v", err)
	}
	if !bytes.Equal(got, material) {
		t.Fatal("material mismatch after convergence")
	}
}

func TestByKidRejectsGarbage(t *testing.T) {
	m, _ := NewManager(NewMemoryStore(), grantLessor{}, rotatingConfig(time.Hour, 3))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	for _, kid := range []string{"", "abc", "-5", "999"} {
		if _, err := m.ByKid(context.Background(), kid); !errors.Is(err, ErrUnknownKey) {
			t.Fatalf("kid %q: expected ErrUnknownKey, got %v", kid, err)
		}
	}
}

func TestStaticModeNeverRotates(t *testing.T) {
	static := bytes.Repeat([]byte("k"), 64)
	m, err := NewManager(nil, nil, Config{StaticKey: static})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	material, kid := m.Current()
	if kid != StaticKid || !bytes.Equal(material, static) {
		t.Fatalf("expected static key with kid %q, got kid %q", StaticKid, kid)
	}
	if m.ShouldRotate() {
		t.Fatal("static mode must never want rotation")
	}
	if _, err := m.ByKid(context.Background(), "1"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("numeric kid must fail in static mode, got %v", err)
	}
}

func TestRedisLessorMutualExclusion(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	lessor := NewRedisLessor(client)
	ctx := context.Background()

	lease, ok, err := lessor.TryAcquire(ctx, "rotate_key_lock", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire failed: ok=%v err=%v", ok, err)
	}

	if _, ok, _ := lessor.TryAcquire(ctx, "rotate_key_lock", 10*time.Second); ok {
		t.Fatal("second acquire must fail while the lease is held")
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, ok, _ := lessor.TryAcquire(ctx, "rotate_key_lock", 10*time.Second); !ok {
		t.Fatal("acquire after release must succeed")
	}
}

func TestRedisLeaseReleaseIsFenced(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	lessor := NewRedisLessor(client)
	ctx := context.Background()

	stale, _, err := lessor.TryAcquire(ctx, "rotate_key_lock", time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// Simulate expiry and takeover by a second holder.
	mr.FastForward(2 * time.Second)
	_, ok, err := lessor.TryAcquire(ctx, "rotate_key_lock", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("takeover acquire failed: ok=%v err=%v", ok, err)
	}

	// The stale holder's release must not delete the new lease.
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale release errored: %v", err)
	}
	if !mr.Exists("rotate_key_lock") {
		t.Fatal("stale release deleted the successor's lease")
	}
}
