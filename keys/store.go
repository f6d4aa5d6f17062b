package keys

import (
	"context"
	"errors"
	"time"
)

// StaticKid is the kid header value used when rotation is disabled and a
// single static key from configuration signs everything.
const StaticKid = "static"

var (
	// ErrUnknownKey is returned when a kid does not resolve to retained key
	// material: malformed, out of range, or pruned past the retention window.
	ErrUnknownKey = errors.New("unknown signing key")
	// ErrRotationFailed wraps persistence failures during the rotate sequence.
	ErrRotationFailed = errors.New("key rotation failed")
	// ErrStoreUnavailable wraps transport failures of the durable key store.
	ErrStoreUnavailable = errors.New("signing key store unavailable")
)

// SigningKey is one immutable signing key record. Kid is assigned by the
// durable store and strictly increases with creation order.
type SigningKey struct {
	Kid       int64
	Material  []byte
	CreatedAt time.Time
}

// Store is the durable, append-only signing key store. Implementations must
// assign monotonically increasing kids on Append and return keys from
// LoadAll ordered oldest first.
type Store interface {
	Append(ctx context.Context, material []byte, createdAt time.Time) (SigningKey, error)
	LoadAll(ctx context.Context) ([]SigningKey, error)
	DeleteOldest(ctx context.Context, n int) error
}
