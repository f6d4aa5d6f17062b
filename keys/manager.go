package keys

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goWarden/internal"
)

// rotateLockName is the shared lease name guarding the rotate-and-prune
// sequence across instances.
const rotateLockName = "rotate_key_lock"

// rotateLockTTL bounds how long a crashed holder can block rotation.
const rotateLockTTL = 10 * time.Second

// Config holds rotation policy for the key manager.
type Config struct {
	// RotationEnabled turns interval rotation on. When false, StaticKey is
	// used as the only signing key with kid [StaticKid], never rotated or
	// pruned.
	RotationEnabled bool
	// RotationInterval is the minimum age of the newest key before a new
	// one is generated.
	RotationInterval time.Duration
	// MaxHistoricalKeys caps how many keys are retained for verification,
	// including the current one.
	MaxHistoricalKeys int
	// StaticKey is the fixed signing key used when rotation is disabled.
	StaticKey []byte
}

type snapshot struct {
	keys         []SigningKey // ascending kid; last entry is current
	lastRotation time.Time
}

// Manager is the in-memory view over a [Store]. It owns current-key
// selection and the rotation policy. All read paths work off an immutable
// snapshot swapped atomically; only Initialize, Rotate and Reload write.
type Manager struct {
	store  Store
	lessor Lessor
	config Config

	snap atomic.Pointer[snapshot]
	mu   sync.Mutex // serializes snapshot writers within this process
}

// NewManager creates a key manager over the given durable store. The lessor
// may be nil only when rotation is disabled.
func NewManager(store Store, lessor Lessor, cfg Config) (*Manager, error) {
	if cfg.RotationEnabled {
		if store == nil {
			return nil, fmt.Errorf("key rotation requires a durable store")
		}
		if lessor == nil {
			return nil, fmt.Errorf("key rotation requires a lessor")
		}
		if cfg.RotationInterval <= 0 {
			return nil, fmt.Errorf("rotation interval must be positive")
		}
		if cfg.MaxHistoricalKeys < 1 {
			return nil, fmt.Errorf("max historical keys must be >= 1")
		}
	} else if len(cfg.StaticKey) == 0 {
		return nil, fmt.Errorf("static signing key required when rotation is disabled")
	}

	return &Manager{store: store, lessor: lessor, config: cfg}, nil
}

// Initialize loads all retained keys from the durable store, generating and
// persisting the first key when the store is empty. With rotation disabled
// it installs the static key and never touches the store.
func (m *Manager) Initialize(ctx context.Context) error {
	if !m.config.RotationEnabled {
		m.snap.Store(&snapshot{
			keys:         []SigningKey{{Kid: 0, Material: m.config.StaticKey, CreatedAt: time.Now()}},
			lastRotation: time.Now(),
		})
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded, err := m.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if len(loaded) == 0 {
		material, err := internal.NewKeyMaterial()
		if err != nil {
			return err
		}
		first, err := m.store.Append(ctx, material, time.Now())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		loaded = []SigningKey{first}
	}

	m.snap.Store(&snapshot{
		keys:         loaded,
		lastRotation: loaded[len(loaded)-1].CreatedAt,
	})
	return nil
}

// Current returns the most recently created key material and its kid, which
// callers embed in the kid header of every signed token.
func (m *Manager) Current() ([]byte, string) {
	s := m.snap.Load()
	if s == nil || len(s.keys) == 0 {
		return nil, ""
	}
	if !m.config.RotationEnabled {
		return m.config.StaticKey, StaticKid
	}
	current := s.keys[len(s.keys)-1]
	return current.Material, strconv.FormatInt(current.Kid, 10)
}

// ShouldRotate reports whether the rotation interval has elapsed since the
// newest key was created. Always false when rotation is disabled.
func (m *Manager) ShouldRotate() bool {
	if !m.config.RotationEnabled {
		return false
	}
	s := m.snap.Load()
	if s == nil {
		return false
	}
	return time.Since(s.lastRotation) >= m.config.RotationInterval
}

// Rotate generates a new random key, persists it, makes it current and
// prunes durable and in-memory keys beyond MaxHistoricalKeys. The sequence
// runs under a non-blocking distributed lease: when another instance holds
// the lease, Rotate returns nil without doing anything. All instances
// converge by reloading the shared store.
func (m *Manager) Rotate(ctx context.Context) error {
	if !m.config.RotationEnabled {
		return nil
	}

	lease, ok, err := m.lessor.TryAcquire(ctx, rotateLockName, rotateLockTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}
	if !ok {
		// Another instance is rotating this cycle.
		return nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Print("goWarden: rotation lease release failed")
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the lease: a concurrent caller may have rotated while
	// we waited for the mutex.
	s := m.snap.Load()
	if s != nil && time.Since(s.lastRotation) < m.config.RotationInterval {
		return nil
	}

	material, err := internal.NewKeyMaterial()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}
	created, err := m.store.Append(ctx, material, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}

	retained := make([]SigningKey, 0, len(s.keys)+1)
	retained = append(retained, s.keys...)
	retained = append(retained, created)

	if excess := len(retained) - m.config.MaxHistoricalKeys; excess > 0 {
		if err := m.store.DeleteOldest(ctx, excess); err != nil {
			return fmt.Errorf("%w: %v", ErrRotationFailed, err)
		}
		retained = retained[excess:]
	}

	m.snap.Store(&snapshot{keys: retained, lastRotation: created.CreatedAt})
	return nil
}

// Reload replaces the snapshot with the durable store's current key set.
// Instances that lost a rotation race call this to converge.
func (m *Manager) Reload(ctx context.Context) error {
	if !m.config.RotationEnabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded, err := m.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(loaded) == 0 {
		return ErrUnknownKey
	}
	m.snap.Store(&snapshot{
		keys:         loaded,
		lastRotation: loaded[len(loaded)-1].CreatedAt,
	})
	return nil
}

// ByKid resolves key material for a kid header value. A snapshot miss
// triggers one reload from the durable store before failing, so a verifier
// that has not yet observed another instance's rotation still converges.
func (m *Manager) ByKid(ctx context.Context, kid string) ([]byte, error) {
	if !m.config.RotationEnabled {
		if kid != StaticKid {
			return nil, ErrUnknownKey
		}
		return m.config.StaticKey, nil
	}

	id, err := strconv.ParseInt(kid, 10, 64)
	if err != nil {
		return nil, ErrUnknownKey
	}

	if material, ok := m.lookup(id); ok {
		return material, nil
	}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	if material, ok := m.lookup(id); ok {
		return material, nil
	}
	return nil, ErrUnknownKey
}

func (m *Manager) lookup(kid int64) ([]byte, bool) {
	s := m.snap.Load()
	if s == nil {
		return nil, false
	}
	for _, k := range s.keys {
		if k.Kid == kid {
			return k.Material, true
		}
	}
	return nil, false
}

// RetainedKids returns the kids currently held in the snapshot, oldest
// first. Intended for introspection and tests.
func (m *Manager) RetainedKids() []int64 {
	s := m.snap.Load()
	if s == nil {
		return nil
	}
	kids := make([]int64, len(s.keys))
	for i, k := range s.keys {
		kids[i] = k.Kid
	}
	return kids
}
