package goWarden

import (
	"errors"
	"time"
)

// JWTConfig controls token issuance and validation.
type JWTConfig struct {
	Issuer     string
	Audience   string
	Algorithm  string // HS256 (default), HS384 or HS512
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// KeyRotationConfig controls the signing key lifecycle. With Enabled false
// the engine signs with StaticKey and never touches the key store.
type KeyRotationConfig struct {
	Enabled           bool
	Interval          time.Duration
	MaxHistoricalKeys int
	StaticKey         []byte
}

// LockoutConfig controls brute force protection thresholds.
type LockoutConfig struct {
	MaxAttempts        int
	AttemptWindow      time.Duration
	LockDuration       time.Duration
	SystemLockDuration time.Duration
}

// RateLimitConfig controls the token verification rate limiter. Disabled
// means Authorize skips the limiter entirely.
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

// PolicyConfig controls policy snapshot refresh.
type PolicyConfig struct {
	ReloadInterval time.Duration
}

// CleanupConfig controls the background sweep of expired token records.
type CleanupConfig struct {
	Enabled  bool
	Interval time.Duration
}

// AuditConfig controls the audit dispatcher. Events beyond BufferSize are
// dropped and counted rather than blocking request paths.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

// MetricsConfig controls the engine counter table.
type MetricsConfig struct {
	Enabled bool
}

// Config is the engine configuration. Build a baseline with
// [DefaultConfig] and override fields before passing it to the Builder.
type Config struct {
	JWT         JWTConfig
	KeyRotation KeyRotationConfig
	Lockout     LockoutConfig
	RateLimit   RateLimitConfig
	Policy      PolicyConfig
	Cleanup     CleanupConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

// DefaultConfig returns production-leaning defaults. The issuer and
// audience are placeholders the host must override.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:     "goWarden",
			Audience:   "goWarden",
			Algorithm:  "HS256",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		KeyRotation: KeyRotationConfig{
			Enabled:           true,
			Interval:          24 * time.Hour,
			MaxHistoricalKeys: 3,
		},
		Lockout: LockoutConfig{
			MaxAttempts:        5,
			AttemptWindow:      15 * time.Minute,
			LockDuration:       15 * time.Minute,
			SystemLockDuration: 15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   100,
			Window:  time.Minute,
		},
		Policy: PolicyConfig{
			ReloadInterval: 5 * time.Minute,
		},
		Cleanup: CleanupConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks cross-field consistency before the Builder wires
// components.
func (c Config) Validate() error {
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return errors.New("jwt issuer and audience are required")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("jwt lifetimes must be positive")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("refresh lifetime must exceed access lifetime")
	}
	if c.KeyRotation.Enabled {
		if c.KeyRotation.Interval <= 0 {
			return errors.New("key rotation interval must be positive")
		}
		if c.KeyRotation.MaxHistoricalKeys < 1 {
			return errors.New("max historical keys must be >= 1")
		}
	} else if len(c.KeyRotation.StaticKey) < 32 {
		return errors.New("static signing key must be at least 32 bytes")
	}
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("lockout max attempts must be >= 1")
	}
	if c.Lockout.AttemptWindow <= 0 || c.Lockout.LockDuration <= 0 || c.Lockout.SystemLockDuration <= 0 {
		return errors.New("lockout durations must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Limit < 1 || c.RateLimit.Window <= 0) {
		return errors.New("rate limit requires a positive limit and window")
	}
	if c.Cleanup.Enabled && c.Cleanup.Interval <= 0 {
		return errors.New("cleanup interval must be positive")
	}
	return nil
}
