package policy

import (
	"context"
	"errors"
)

// ErrStoreUnavailable wraps infrastructure failures of the policy store.
var ErrStoreUnavailable = errors.New("policy store unavailable")

// Store persists policy rules. AddRule suppresses exact duplicates rather
// than erroring; RemoveRule of an absent rule is a no-op.
type Store interface {
	LoadAll(ctx context.Context) ([]Rule, error)
	AddRule(ctx context.Context, r Rule) error
	RemoveRule(ctx context.Context, r Rule) error
}
