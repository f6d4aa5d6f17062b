package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/goWarden/internal"
	"github.com/MrEthical07/goWarden/keys"
)

// nbfSkew backdates the nbf claim so freshly issued tokens survive clock
// drift between issuer and verifier.
const nbfSkew = 30 * time.Second

// Config holds token issuance and validation parameters.
type Config struct {
	// Issuer and Audience are stamped into every token and required on
	// validation.
	Issuer   string
	Audience string
	// AccessTTL and RefreshTTL bound token lifetimes.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Algorithm names the HMAC signing method: HS256, HS384 or HS512.
	Algorithm string
	// Leeway is the clock tolerance applied to exp and nbf on validation.
	Leeway time.Duration
}

// Service issues and validates signed tokens and tracks their revocation
// state. The cache is optional; without it every revocation check goes to
// the durable store.
type Service struct {
	keys   *keys.Manager
	store  Store
	cache  *RevocationCache
	config Config
	method jwt.SigningMethod
	now    func() time.Time
}

// NewService creates a token service over the given key manager and store.
func NewService(km *keys.Manager, store Store, cache *RevocationCache, cfg Config) (*Service, error) {
	if km == nil {
		return nil, fmt.Errorf("token service requires a key manager")
	}
	if store == nil {
		return nil, fmt.Errorf("token service requires a store")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("token issuer and audience are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token lifetimes must be positive")
	}

	var method jwt.SigningMethod
	switch cfg.Algorithm {
	case "", "HS256":
		cfg.Algorithm = "HS256"
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	return &Service{
		keys:   km,
		store:  store,
		cache:  cache,
		config: cfg,
		method: method,
		now:    time.Now,
	}, nil
}

// CreateAccessToken signs a new access token for the subject and persists
// its record, revoking any live access token for the same (subject, device)
// pair. When the rotation interval has elapsed the new token is signed with
// a fresh key; a failed rotation falls back to the current key so issuance
// never stalls on the lease.
func (s *Service) CreateAccessToken(ctx context.Context, subject, deviceID string) (string, error) {
	if s.keys.ShouldRotate() {
		if err := s.keys.Rotate(ctx); err != nil {
			log.Print("goWarden: key rotation failed, signing with current key")
		}
	}

	now := s.now()
	claims := s.newClaims(TypeAccess, subject, deviceID, now, s.config.AccessTTL)
	signed, err := s.sign(claims)
	if err != nil {
		return "", err
	}

	rec := AccessTokenRecord{
		JTI:       claims.ID,
		Subject:   subject,
		DeviceID:  deviceID,
		IssuedAt:  now,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.store.SaveAccessToken(ctx, rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return signed, nil
}

// CreateRefreshToken signs a new refresh token bound to the device and
// persists its SHA-256 hash, revoking any live refresh token for the same
// (subject, device) pair. The device ID is mandatory.
func (s *Service) CreateRefreshToken(ctx context.Context, subject, deviceID string) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("%w: refresh token requires a device id", ErrTokenMalformed)
	}

	now := s.now()
	claims := s.newClaims(TypeRefresh, subject, deviceID, now, s.config.RefreshTTL)
	signed, err := s.sign(claims)
	if err != nil {
		return "", err
	}

	rec := RefreshTokenRecord{
		JTI:       claims.ID,
		TokenHash: internal.HashToken(signed),
		Subject:   subject,
		DeviceID:  deviceID,
		IssuedAt:  now,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.store.SaveRefreshToken(ctx, rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return signed, nil
}

// Validate verifies the token's signature against the key named by its kid
// header and checks exp, nbf, iss, aud and typ. It does not consult
// revocation state; callers combine it with [Service.IsAccessTokenRevoked]
// where revocation matters.
func (s *Service) Validate(ctx context.Context, tokenString, expectedType string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.config.Algorithm}),
		jwt.WithLeeway(s.config.Leeway),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithAudience(s.config.Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrTokenMalformed
		}
		material, err := s.keys.ByKid(ctx, kid)
		if err != nil {
			return nil, err
		}
		return material, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, keys.ErrUnknownKey):
			return nil, keys.ErrUnknownKey
		case errors.Is(err, keys.ErrStoreUnavailable):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}

	if claims.TokenType != expectedType {
		return nil, ErrWrongTokenType
	}
	if claims.TokenType == TypeRefresh && claims.DeviceID == "" {
		return nil, fmt.Errorf("%w: refresh token missing device id", ErrTokenMalformed)
	}
	return claims, nil
}

// IsAccessTokenRevoked reports whether the JTI has been revoked. The check
// is fail-closed: a missing record or an unreachable store counts as
// revoked. Cache errors are tolerated because the durable store answers
// authoritatively.
func (s *Service) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if s.cache != nil {
		revoked, err := s.cache.IsRevoked(ctx, jti)
		if err == nil && revoked {
			return true, nil
		}
		if err != nil {
			log.Print("goWarden: revocation cache unavailable, falling back to store")
		}
	}

	rec, err := s.store.GetAccessToken(ctx, jti)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec.Revoked || !s.now().Before(rec.ExpiresAt), nil
}

// RevokeAccessToken marks the access token revoked in the durable store and
// shadows it in the cache for the remainder of its lifetime. Revoking an
// already-revoked token is a no-op.
func (s *Service) RevokeAccessToken(ctx context.Context, jti string) error {
	rec, err := s.store.RevokeAccessToken(ctx, jti, s.now())
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if s.cache != nil {
		ttl := rec.ExpiresAt.Sub(s.now())
		if err := s.cache.MarkRevoked(ctx, jti, ttl); err != nil {
			log.Print("goWarden: revocation cache write failed")
		}
	}
	return nil
}

// RevokeAccessTokenString revokes the access token carried in the given
// signed string. It is best-effort logout support: a token that fails
// validation is reported but nothing else happens.
func (s *Service) RevokeAccessTokenString(ctx context.Context, tokenString string) error {
	claims, err := s.Validate(ctx, tokenString, TypeAccess)
	if err != nil {
		return err
	}
	return s.RevokeAccessToken(ctx, claims.ID)
}

// RevokeRefreshToken marks the refresh token revoked in the durable store.
func (s *Service) RevokeRefreshToken(ctx context.Context, jti string) error {
	err := s.store.RevokeRefreshToken(ctx, jti, s.now())
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Refresh consumes a refresh token and issues a replacement pair. The old
// refresh token is revoked and both new records are installed in one store
// transaction, so a crash between steps never leaves the old token usable
// alongside the new pair. A replayed refresh token fails with
// ErrTokenRevoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	claims, err := s.Validate(ctx, refreshToken, TypeRefresh)
	if err != nil {
		return "", "", err
	}

	rec, err := s.store.GetRefreshToken(ctx, claims.ID)
	if errors.Is(err, ErrNotFound) {
		return "", "", ErrTokenRevoked
	}
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if rec.Revoked {
		return "", "", ErrTokenRevoked
	}
	if rec.TokenHash != internal.HashToken(refreshToken) {
		return "", "", fmt.Errorf("%w: refresh token does not match its record", ErrTokenMalformed)
	}

	if s.keys.ShouldRotate() {
		if err := s.keys.Rotate(ctx); err != nil {
			log.Print("goWarden: key rotation failed, signing with current key")
		}
	}

	now := s.now()
	subject, deviceID := rec.Subject, rec.DeviceID

	refreshClaims := s.newClaims(TypeRefresh, subject, deviceID, now, s.config.RefreshTTL)
	newRefresh, err := s.sign(refreshClaims)
	if err != nil {
		return "", "", err
	}
	accessClaims := s.newClaims(TypeAccess, subject, deviceID, now, s.config.AccessTTL)
	newAccess, err := s.sign(accessClaims)
	if err != nil {
		return "", "", err
	}

	err = s.store.RotateRefreshToken(ctx, claims.ID, now,
		RefreshTokenRecord{
			JTI:       refreshClaims.ID,
			TokenHash: internal.HashToken(newRefresh),
			Subject:   subject,
			DeviceID:  deviceID,
			IssuedAt:  now,
			ExpiresAt: refreshClaims.ExpiresAt.Time,
		},
		AccessTokenRecord{
			JTI:       accessClaims.ID,
			Subject:   subject,
			DeviceID:  deviceID,
			IssuedAt:  now,
			ExpiresAt: accessClaims.ExpiresAt.Time,
		},
	)
	if errors.Is(err, ErrTokenRevoked) {
		return "", "", ErrTokenRevoked
	}
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return newAccess, newRefresh, nil
}

// RevokeAllForSubject revokes every live token for the subject across all
// devices and returns the number of access tokens revoked.
func (s *Service) RevokeAllForSubject(ctx context.Context, subject string) (int64, error) {
	n, err := s.store.RevokeAllForSubject(ctx, subject, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// CleanupExpiredTokens deletes expired token records from the durable store
// and reports how many rows were removed.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *Service) newClaims(typ, subject, deviceID string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		TokenType: typ,
		DeviceID:  deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        internal.NewJTI(),
			Subject:   subject,
			Issuer:    s.config.Issuer,
			Audience:  jwt.ClaimStrings{s.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-nbfSkew)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (s *Service) sign(claims *Claims) (string, error) {
	material, kid := s.keys.Current()
	if kid == "" {
		return "", fmt.Errorf("%w: no signing key available", keys.ErrUnknownKey)
	}
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = kid
	signed, err := t.SignedString(material)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
