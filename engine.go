package goWarden

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goWarden/internal"
	"github.com/MrEthical07/goWarden/internal/limiters"
	"github.com/MrEthical07/goWarden/internal/rate"
	"github.com/MrEthical07/goWarden/keys"
	"github.com/MrEthical07/goWarden/policy"
	"github.com/MrEthical07/goWarden/token"
)

// Engine is the authentication and authorization core. Build one with the
// [Builder]; all methods are safe for concurrent use. Close releases
// background tasks; the engine rejects calls after Close.
type Engine struct {
	config   Config
	users    UserProvider
	verifier CredentialVerifier

	keyManager *keys.Manager
	tokens     *token.Service
	policies   *policy.Engine
	guard      *limiters.Guard
	limiter    *rate.Limiter

	metrics    *Metrics
	dispatcher *auditDispatcher

	closed    atomic.Bool
	cancel    context.CancelFunc
	cleanupWG sync.WaitGroup
}

// Login authenticates a username and password for a device and issues an
// access and refresh token pair.
//
// The order of checks is fixed: system lockout, per-account lockout,
// credential verification, account activity. Unknown usernames burn the
// same Argon2 cost as wrong passwords and surface the same
// ErrInvalidCredentials, so neither the response nor its timing reveals
// which usernames exist.
func (e *Engine) Login(ctx context.Context, username, password, deviceID string) (TokenPair, error) {
	if e.closed.Load() {
		return TokenPair{}, ErrEngineClosed
	}
	if deviceID == "" {
		return TokenPair{}, ErrDeviceIDRequired
	}

	ip := clientIPFromContext(ctx)

	systemLocked, err := e.guard.IsSystemLocked(ctx)
	if err != nil {
		return TokenPair{}, err
	}
	if systemLocked {
		e.metrics.Inc(MetricLoginSystemLocked)
		e.audit(ctx, AuditSystemLocked, username, deviceID, false, ErrSystemLocked, nil)
		return TokenPair{}, ErrSystemLocked
	}

	accountLocked, err := e.guard.IsAccountLocked(ctx, username)
	if err != nil {
		return TokenPair{}, err
	}
	if accountLocked {
		e.metrics.Inc(MetricLoginLockedOut)
		e.audit(ctx, AuditAccountLocked, username, deviceID, false, ErrAccountLocked, nil)
		return TokenPair{}, ErrAccountLocked
	}

	user, err := e.users.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		// Burn the same hashing cost as a real verification.
		e.verifier.DummyVerify(password)
		return TokenPair{}, e.failLogin(ctx, ip, username, deviceID, "unknown user")
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("user lookup: %w", err)
	}

	ok, err := e.verifier.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return TokenPair{}, e.failLogin(ctx, ip, username, deviceID, "wrong password")
	}
	if !user.IsActive {
		return TokenPair{}, e.failLogin(ctx, ip, username, deviceID, "inactive account")
	}

	if err := e.guard.ResetFailedAttempts(ctx, ip, username); err != nil {
		log.Print("goWarden: failed attempt counter reset failed")
	}

	access, err := e.tokens.CreateAccessToken(ctx, username, deviceID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.tokens.CreateRefreshToken(ctx, username, deviceID)
	if err != nil {
		return TokenPair{}, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.audit(ctx, AuditLoginSuccess, username, deviceID, true, nil, nil)
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// failLogin records one failed attempt and returns ErrInvalidCredentials.
// The reason goes to the audit trail only, never to the caller.
func (e *Engine) failLogin(ctx context.Context, ip, username, deviceID, reason string) error {
	e.metrics.Inc(MetricLoginFailure)

	locked, err := e.guard.RecordFailedAttempt(ctx, ip, username)
	if err != nil {
		log.Print("goWarden: failed attempt recording failed")
	}
	e.audit(ctx, AuditLoginFailure, username, deviceID, false, ErrInvalidCredentials,
		map[string]string{"reason": reason})
	if locked {
		e.audit(ctx, AuditAccountLocked, username, deviceID, false, ErrAccountLocked, nil)
	}
	return ErrInvalidCredentials
}

// Refresh exchanges a valid refresh token for a new access and refresh
// token pair. The old refresh token is consumed; replaying it fails with
// ErrTokenRevoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e.closed.Load() {
		return TokenPair{}, ErrEngineClosed
	}

	access, refresh, err := e.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.audit(ctx, AuditRefreshFailure, "", "", false, err, nil)
		return TokenPair{}, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.audit(ctx, AuditRefresh, "", "", true, nil, nil)
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes the presented access and refresh tokens. Each revocation
// is best-effort and independent; a token that no longer validates is
// simply skipped.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	var username string
	if accessToken != "" {
		if claims, err := e.tokens.Validate(ctx, accessToken, token.TypeAccess); err == nil {
			username = claims.Subject
			if err := e.tokens.RevokeAccessToken(ctx, claims.ID); err != nil {
				log.Print("goWarden: access token revocation failed on logout")
			}
		}
	}
	if refreshToken != "" {
		if claims, err := e.tokens.Validate(ctx, refreshToken, token.TypeRefresh); err == nil {
			username = claims.Subject
			if err := e.tokens.RevokeRefreshToken(ctx, claims.ID); err != nil {
				log.Print("goWarden: refresh token revocation failed on logout")
			}
		}
	}

	e.metrics.Inc(MetricLogout)
	e.audit(ctx, AuditLogout, username, "", true, nil, nil)
	return nil
}

// LogoutAll revokes every live token for the username across all devices
// and returns the number of access tokens revoked.
func (e *Engine) LogoutAll(ctx context.Context, username string) (int64, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	n, err := e.tokens.RevokeAllForSubject(ctx, username)
	if err != nil {
		return 0, err
	}

	e.metrics.Inc(MetricLogoutAll)
	e.audit(ctx, AuditLogoutAll, username, "", true, nil,
		map[string]string{"revoked_access_tokens": fmt.Sprint(n)})
	return n, nil
}

// Authorize validates an access token and decides whether its principal
// may perform the action on the object. On success it returns the
// principal with the roles and groups current in the user store, not the
// ones from login time.
func (e *Engine) Authorize(ctx context.Context, accessToken, object, action string) (Principal, error) {
	if e.closed.Load() {
		return Principal{}, ErrEngineClosed
	}

	if e.limiter != nil {
		if err := e.limiter.Allow(ctx, internal.HashToken(accessToken)); err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.metrics.Inc(MetricAuthorizeRateLimited)
				e.audit(ctx, AuditRateLimited, "", "", false, err, nil)
			}
			return Principal{}, err
		}
	}

	claims, err := e.tokens.Validate(ctx, accessToken, token.TypeAccess)
	if err != nil {
		e.metrics.Inc(MetricTokenValidationFailure)
		return Principal{}, err
	}

	revoked, err := e.tokens.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Principal{}, err
	}
	if revoked {
		e.metrics.Inc(MetricTokenValidationFailure)
		return Principal{}, ErrTokenRevoked
	}

	user, err := e.users.GetUserByUsername(ctx, claims.Subject)
	if errors.Is(err, ErrUserNotFound) {
		return Principal{}, e.deny(ctx, claims.Subject, object, action)
	}
	if err != nil {
		return Principal{}, fmt.Errorf("user lookup: %w", err)
	}
	if !user.IsActive {
		return Principal{}, e.deny(ctx, claims.Subject, object, action)
	}

	allowed := e.policies.Enforce(policy.Request{
		Sub: policy.Subject{
			ID:       user.ID,
			Username: user.Username,
			Roles:    user.Roles,
			Groups:   user.Groups,
			IsActive: user.IsActive,
		},
		Obj: object,
		Act: action,
	})
	if !allowed {
		return Principal{}, e.deny(ctx, claims.Subject, object, action)
	}

	e.metrics.Inc(MetricAuthorizeAllowed)
	return Principal{
		ID:       user.ID,
		Username: user.Username,
		Roles:    user.Roles,
		Groups:   user.Groups,
	}, nil
}

func (e *Engine) deny(ctx context.Context, username, object, action string) error {
	e.metrics.Inc(MetricAuthorizeDenied)
	e.audit(ctx, AuditAuthorizeDenied, username, "", false, ErrInsufficientPermissions,
		map[string]string{"object": object, "action": action})
	return ErrInsufficientPermissions
}

// AddPolicy persists a rule and broadcasts the change to other instances.
func (e *Engine) AddPolicy(ctx context.Context, r policy.Rule) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.policies.AddRule(ctx, r)
}

// RemovePolicy removes a rule and broadcasts the change.
func (e *Engine) RemovePolicy(ctx context.Context, r policy.Rule) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.policies.RemoveRule(ctx, r)
}

// ActivateSystemLockout halts all logins across every instance for the
// configured duration.
func (e *Engine) ActivateSystemLockout(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.guard.ActivateSystemLockout(ctx)
}

// DeactivateSystemLockout lifts a system lockout early.
func (e *Engine) DeactivateSystemLockout(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.guard.DeactivateSystemLockout(ctx)
}

// CleanupExpiredTokens sweeps expired token records immediately, outside
// the background schedule.
func (e *Engine) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	n, err := e.tokens.CleanupExpiredTokens(ctx)
	if err != nil {
		return 0, err
	}
	e.metrics.Add(MetricCleanupDeletedTokens, uint64(n))
	return n, nil
}

// MetricsSnapshot copies the engine counters. The audit drop count comes
// from the dispatcher, which is its own source of truth.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	snap := e.metrics.Snapshot()
	if _, ok := snap.Counters[MetricAuditEventsDropped.Name()]; ok {
		snap.Counters[MetricAuditEventsDropped.Name()] = e.dispatcher.Dropped()
	}
	return snap
}

// Keys exposes the key manager for operational tooling.
func (e *Engine) Keys() *keys.Manager { return e.keyManager }

// Tokens exposes the token service for hosts that need direct issuance.
func (e *Engine) Tokens() *token.Service { return e.tokens }

// Close stops background tasks and the audit dispatcher. In-flight calls
// finish; new calls fail with ErrEngineClosed.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.cleanupWG.Wait()
	e.policies.Close()
	e.dispatcher.Close()
}

func (e *Engine) startCleanup(ctx context.Context) {
	e.cleanupWG.Add(1)
	go func() {
		defer e.cleanupWG.Done()

		ticker := time.NewTicker(e.config.Cleanup.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := e.tokens.CleanupExpiredTokens(ctx)
				if err != nil {
					log.Print("goWarden: expired token cleanup failed")
					continue
				}
				e.metrics.Add(MetricCleanupDeletedTokens, uint64(n))
			}
		}
	}()
}

func (e *Engine) audit(ctx context.Context, eventType, username, deviceID string, success bool, cause error, metadata map[string]string) {
	if e.dispatcher == nil {
		return
	}
	now := time.Now()
	event := AuditEvent{
		ID:        newAuditEventID(now),
		Timestamp: now,
		EventType: eventType,
		Username:  username,
		DeviceID:  deviceID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.dispatcher.Emit(event)
}
