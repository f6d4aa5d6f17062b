package token

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for token persistence and validation.
var (
	// ErrNotFound is returned by store lookups when no record matches.
	ErrNotFound = errors.New("token record not found")

	// ErrTokenExpired is returned when a token's exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenMalformed is returned for tokens that fail signature, claim or
	// structural validation for any reason other than expiry.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenRevoked is returned when a token has been revoked, or when its
	// durable record is missing and revocation is assumed.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrWrongTokenType is returned when a refresh token is presented where
	// an access token is expected, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")

	// ErrStoreUnavailable wraps infrastructure failures of the token store.
	ErrStoreUnavailable = errors.New("token store unavailable")
)

// AccessTokenRecord is the durable row behind an issued access token.
type AccessTokenRecord struct {
	JTI       string
	Subject   string
	DeviceID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt time.Time
}

// RefreshTokenRecord is the durable row behind an issued refresh token.
// TokenHash is the SHA-256 hex digest of the signed token string; the raw
// string is never stored.
type RefreshTokenRecord struct {
	JTI       string
	TokenHash string
	Subject   string
	DeviceID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt time.Time
}

// Store persists issued tokens and their revocation state.
//
// Save operations enforce per-device exclusivity: inserting a record revokes
// every live record of the same type for the same (subject, device) pair in
// the same atomic operation. RotateRefreshToken consumes the old refresh
// token and installs its replacements as one unit; of two concurrent
// rotations of the same token, exactly one succeeds.
type Store interface {
	SaveAccessToken(ctx context.Context, rec AccessTokenRecord) error
	GetAccessToken(ctx context.Context, jti string) (AccessTokenRecord, error)
	RevokeAccessToken(ctx context.Context, jti string, at time.Time) (AccessTokenRecord, error)

	SaveRefreshToken(ctx context.Context, rec RefreshTokenRecord) error
	GetRefreshToken(ctx context.Context, jti string) (RefreshTokenRecord, error)
	RevokeRefreshToken(ctx context.Context, jti string, at time.Time) error

	// RotateRefreshToken atomically revokes the refresh token identified by
	// oldJTI and inserts the replacement refresh and access records. It
	// returns ErrTokenRevoked if the old token is already revoked or gone,
	// so a replayed rotation cannot mint a second token family.
	RotateRefreshToken(ctx context.Context, oldJTI string, at time.Time, refresh RefreshTokenRecord, access AccessTokenRecord) error

	// RevokeAllForSubject revokes every live token of both types for the
	// subject and reports how many access tokens it revoked.
	RevokeAllForSubject(ctx context.Context, subject string, at time.Time) (int64, error)

	// DeleteExpired removes records whose expiry is at or before now and
	// reports how many rows it deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
