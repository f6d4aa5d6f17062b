package goWarden

import (
	"errors"
	"time"

	"github.com/MrEthical07/goWarden/internal/limiters"
	"github.com/MrEthical07/goWarden/internal/rate"
	"github.com/MrEthical07/goWarden/keys"
	"github.com/MrEthical07/goWarden/policy"
	"github.com/MrEthical07/goWarden/token"
)

// Engine-level sentinel errors. Subpackage sentinels that cross the public
// surface are re-exported here so callers can match everything with
// errors.Is against one package.
var (
	// ErrInvalidCredentials covers unknown username and wrong password
	// alike; the two cases are indistinguishable to the caller by value
	// and by timing.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned while a per-account lockout holds.
	ErrAccountLocked = errors.New("account locked")

	// ErrSystemLocked is returned while the system-wide lockout is active.
	ErrSystemLocked = errors.New("system locked")

	// ErrInsufficientPermissions is returned when policy evaluation denies
	// the request.
	ErrInsufficientPermissions = errors.New("insufficient permissions")

	// ErrDeviceIDRequired is returned by Login when no device identifier
	// was supplied.
	ErrDeviceIDRequired = errors.New("device id required")

	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine closed")

	// ErrInvalidUsername is returned when a username fails the grammar in
	// ValidateUsername.
	ErrInvalidUsername = errors.New("invalid username")
)

// RetryAfter extracts the wait hint carried by an ErrRateLimited
// rejection, or 0 if err is not one. The limiter lives in an internal
// package, so this is the public accessor.
func RetryAfter(err error) time.Duration {
	return rate.AsRetryAfter(err)
}

// Re-exported subpackage sentinels.
var (
	ErrTokenExpired           = token.ErrTokenExpired
	ErrTokenMalformed         = token.ErrTokenMalformed
	ErrTokenRevoked           = token.ErrTokenRevoked
	ErrWrongTokenType         = token.ErrWrongTokenType
	ErrUnknownKey             = keys.ErrUnknownKey
	ErrKeyRotationFailed      = keys.ErrRotationFailed
	ErrRateLimited            = rate.ErrRateLimited
	ErrLockoutUnavailable     = limiters.ErrUnavailable
	ErrPolicyStoreUnavailable = policy.ErrStoreUnavailable
)
