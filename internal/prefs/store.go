// Package prefs persists the two dashboard preferences: the colour theme and the
// snapshot connection settings.
package prefs

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Preference keys.
const (
	KeyTheme      = "dashboardTheme"
	KeyConnection = "dashboardConfig"
)

// ErrInvalidKey is returned for empty keys.
var ErrInvalidKey = errors.New("prefs: key required")

// Store is a string key-value port. ok is false when the key has never been set.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// MemoryStore keeps preferences in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, ErrInvalidKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

type scoped struct {
	store Store
	scope string
}

// Scoped namespaces every key of store under scope, typically a browser session id.
// An empty scope returns store unchanged.
func Scoped(store Store, scope string) Store {
	if scope == "" {
		return store
	}
	return scoped{store: store, scope: scope}
}

func (s scoped) key(key string) string {
	return s.scope + ":" + key
}

func (s scoped) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, ErrInvalidKey
	}
	return s.store.Get(ctx, s.key(key))
}

func (s scoped) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return s.store.Set(ctx, s.key(key), value)
}
