package authstore

import (
	"context"
	"maps"
	"sync"
)

// Store persists the latest bundle per logical session key. Load returns
// a zero Bundle and no error when nothing is stored.
type Store interface {
	Load(ctx context.Context, key string) (Bundle, error)
	Save(ctx context.Context, key string, bundle Bundle) error
}

// AuthStateNotifier is implemented by stores that want to hear about
// authentication state transitions.
type AuthStateNotifier interface {
	AuthStateChanged(key string, authenticated bool)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	bundles map[string]Bundle
	states  map[string]bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bundles: make(map[string]Bundle),
		states:  make(map[string]bool),
	}
}

// Load returns the stored bundle for key.
func (s *MemoryStore) Load(_ context.Context, key string) (Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundles[key], nil
}

// Save stores bundle under key.
func (s *MemoryStore) Save(_ context.Context, key string, bundle Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[key] = bundle
	return nil
}

// Delete removes the bundle stored under key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bundles, key)
	return nil
}

// AuthStateChanged records the last reported state for key.
func (s *MemoryStore) AuthStateChanged(key string, authenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = authenticated
}

// Authenticated returns the last reported state for key.
func (s *MemoryStore) Authenticated(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[key]
}

// Snapshot returns a copy of every stored bundle.
func (s *MemoryStore) Snapshot() map[string]Bundle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.bundles)
}
