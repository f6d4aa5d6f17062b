package goWarden

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goWarden/internal/limiters"
	"github.com/MrEthical07/goWarden/internal/rate"
	"github.com/MrEthical07/goWarden/keys"
	"github.com/MrEthical07/goWarden/password"
	"github.com/MrEthical07/goWarden/policy"
	"github.com/MrEthical07/goWarden/token"
)

// Builder assembles an [Engine]. Redis, the three durable stores and a
// UserProvider are required; everything else has a default. A builder is
// single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	keyStore    keys.Store
	tokenStore  token.Store
	policyStore policy.Store

	userProvider UserProvider
	verifier     CredentialVerifier
	auditSink    AuditSink

	built bool
}

// New creates a builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client shared by the lockout guard, rate
// limiter, revocation cache, rotation lease and policy notifier.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithKeyStore sets the durable signing key store.
func (b *Builder) WithKeyStore(s keys.Store) *Builder {
	b.keyStore = s
	return b
}

// WithTokenStore sets the durable token store.
func (b *Builder) WithTokenStore(s token.Store) *Builder {
	b.tokenStore = s
	return b
}

// WithPolicyStore sets the durable policy store.
func (b *Builder) WithPolicyStore(s policy.Store) *Builder {
	b.policyStore = s
	return b
}

// WithUserProvider sets the host's account storage.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithCredentialVerifier overrides the default Argon2id verifier.
func (b *Builder) WithCredentialVerifier(v CredentialVerifier) *Builder {
	b.verifier = v
	return b
}

// WithAuditSink sets where audit events go. Without one, events are
// dropped silently when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, wires every component, loads the
// signing keys and the first policy snapshot, and starts the background
// tasks. The returned engine owns them until Close.
func (b *Builder) Build(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.tokenStore == nil {
		return nil, errors.New("token store is required")
	}
	if b.policyStore == nil {
		return nil, errors.New("policy store is required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider is required")
	}
	if b.config.KeyRotation.Enabled && b.keyStore == nil {
		return nil, errors.New("key store is required when rotation is enabled")
	}

	verifier := b.verifier
	if verifier == nil {
		argon, err := password.NewArgon2(password.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("default credential verifier: %w", err)
		}
		verifier = argon
	}

	keyManager, err := keys.NewManager(b.keyStore, keys.NewRedisLessor(b.redis), keys.Config{
		RotationEnabled:   b.config.KeyRotation.Enabled,
		RotationInterval:  b.config.KeyRotation.Interval,
		MaxHistoricalKeys: b.config.KeyRotation.MaxHistoricalKeys,
		StaticKey:         b.config.KeyRotation.StaticKey,
	})
	if err != nil {
		return nil, err
	}
	if err := keyManager.Initialize(ctx); err != nil {
		return nil, err
	}

	tokens, err := token.NewService(keyManager, b.tokenStore, token.NewRevocationCache(b.redis), token.Config{
		Issuer:     b.config.JWT.Issuer,
		Audience:   b.config.JWT.Audience,
		Algorithm:  b.config.JWT.Algorithm,
		AccessTTL:  b.config.JWT.AccessTTL,
		RefreshTTL: b.config.JWT.RefreshTTL,
		Leeway:     b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	policies, err := policy.NewEngine(b.policyStore, policy.NewNotifier(b.redis), b.config.Policy.ReloadInterval)
	if err != nil {
		return nil, err
	}
	if err := policies.Start(ctx); err != nil {
		return nil, err
	}

	guard, err := limiters.NewGuard(b.redis, limiters.Config{
		MaxAttempts:        b.config.Lockout.MaxAttempts,
		AttemptWindow:      b.config.Lockout.AttemptWindow,
		LockDuration:       b.config.Lockout.LockDuration,
		SystemLockDuration: b.config.Lockout.SystemLockDuration,
	})
	if err != nil {
		policies.Close()
		return nil, err
	}

	var limiter *rate.Limiter
	if b.config.RateLimit.Enabled {
		limiter, err = rate.NewLimiter(b.redis, rate.Config{
			Limit:  b.config.RateLimit.Limit,
			Window: b.config.RateLimit.Window,
		})
		if err != nil {
			policies.Close()
			return nil, err
		}
	}

	e := &Engine{
		config:     b.config,
		users:      b.userProvider,
		verifier:   verifier,
		keyManager: keyManager,
		tokens:     tokens,
		policies:   policies,
		guard:      guard,
		limiter:    limiter,
		metrics:    newMetrics(b.config.Metrics.Enabled),
		dispatcher: newAuditDispatcher(b.config.Audit, b.auditSink),
	}

	if b.config.Cleanup.Enabled {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		e.cancel = cancel
		e.startCleanup(runCtx)
	}
	return e, nil
}
