package prometheus

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	goWarden "github.com/MrEthical07/goWarden"
	"github.com/MrEthical07/goWarden/policy"
	"github.com/MrEthical07/goWarden/token"
)

type noUsers struct{}

func (noUsers) GetUserByUsername(context.Context, string) (goWarden.UserRecord, error) {
	return goWarden.UserRecord{}, goWarden.ErrUserNotFound
}

func TestCollectorExportsEngineCounters(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := goWarden.DefaultConfig()
	cfg.KeyRotation = goWarden.KeyRotationConfig{StaticKey: []byte(strings.Repeat("k", 64))}
	cfg.Cleanup.Enabled = false
	cfg.Audit.Enabled = false
	cfg.RateLimit.Enabled = false

	engine, err := goWarden.New().
		WithConfig(cfg).
		WithRedis(client).
		WithTokenStore(token.NewMemoryStore()).
		WithPolicyStore(policy.NewMemoryStore()).
		WithUserProvider(noUsers{}).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	// One failed login to move a counter.
	if _, err := engine.Login(context.Background(), "ghost", "whatever-password", "d1"); err == nil {
		t.Fatal("login must fail")
	}

	registry := promclient.NewRegistry()
	if err := registry.Register(NewCollector(engine)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := make(map[string]float64)
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			found[fam.GetName()] = m.GetCounter().GetValue()
		}
	}

	if v, ok := found["gowarden_login_failure_total"]; !ok || v != 1 {
		t.Fatalf("expected gowarden_login_failure_total = 1, got %v (present=%v)", v, ok)
	}
	if _, ok := found["gowarden_login_success_total"]; !ok {
		t.Fatal("expected gowarden_login_success_total to be exported at 0")
	}
}
