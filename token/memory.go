package token

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process [Store] for tests and single-node embedding.
type MemoryStore struct {
	mu      sync.Mutex
	access  map[string]*AccessTokenRecord
	refresh map[string]*RefreshTokenRecord
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		access:  make(map[string]*AccessTokenRecord),
		refresh: make(map[string]*RefreshTokenRecord),
	}
}

func (s *MemoryStore) revokeAccessSiblings(subject, deviceID string, at time.Time) {
	for _, rec := range s.access {
		if rec.Subject == subject && rec.DeviceID == deviceID && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = at
		}
	}
}

func (s *MemoryStore) revokeRefreshSiblings(subject, deviceID string, at time.Time) {
	for _, rec := range s.refresh {
		if rec.Subject == subject && rec.DeviceID == deviceID && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = at
		}
	}
}

func (s *MemoryStore) SaveAccessToken(_ context.Context, rec AccessTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeAccessSiblings(rec.Subject, rec.DeviceID, rec.IssuedAt)
	s.access[rec.JTI] = &rec
	return nil
}

func (s *MemoryStore) GetAccessToken(_ context.Context, jti string) (AccessTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.access[jti]
	if !ok {
		return AccessTokenRecord{}, ErrNotFound
	}
	return *rec, nil
}

func (s *MemoryStore) RevokeAccessToken(_ context.Context, jti string, at time.Time) (AccessTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.access[jti]
	if !ok {
		return AccessTokenRecord{}, ErrNotFound
	}
	if !rec.Revoked {
		rec.Revoked = true
		rec.RevokedAt = at
	}
	return *rec, nil
}

func (s *MemoryStore) SaveRefreshToken(_ context.Context, rec RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeRefreshSiblings(rec.Subject, rec.DeviceID, rec.IssuedAt)
	s.refresh[rec.JTI] = &rec
	return nil
}

func (s *MemoryStore) GetRefreshToken(_ context.Context, jti string) (RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[jti]
	if !ok {
		return RefreshTokenRecord{}, ErrNotFound
	}
	return *rec, nil
}

func (s *MemoryStore) RevokeRefreshToken(_ context.Context, jti string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[jti]
	if !ok {
		return ErrNotFound
	}
	if !rec.Revoked {
		rec.Revoked = true
		rec.RevokedAt = at
	}
	return nil
}

func (s *MemoryStore) RotateRefreshToken(_ context.Context, oldJTI string, at time.Time, refresh RefreshTokenRecord, access AccessTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refresh[oldJTI]
	if !ok || old.Revoked || !at.Before(old.ExpiresAt) {
		return ErrTokenRevoked
	}
	old.Revoked = true
	old.RevokedAt = at

	s.revokeRefreshSiblings(refresh.Subject, refresh.DeviceID, at)
	s.refresh[refresh.JTI] = &refresh
	s.revokeAccessSiblings(access.Subject, access.DeviceID, at)
	s.access[access.JTI] = &access
	return nil
}

func (s *MemoryStore) RevokeAllForSubject(_ context.Context, subject string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked int64
	for _, rec := range s.access {
		if rec.Subject == subject && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = at
			revoked++
		}
	}
	for _, rec := range s.refresh {
		if rec.Subject == subject && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = at
		}
	}
	return revoked, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for jti, rec := range s.access {
		if !rec.ExpiresAt.After(now) {
			delete(s.access, jti)
			deleted++
		}
	}
	for jti, rec := range s.refresh {
		if !rec.ExpiresAt.After(now) {
			delete(s.refresh, jti)
			deleted++
		}
	}
	return deleted, nil
}
