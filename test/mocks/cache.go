// Package mocks provides hand-written test doubles shared across packages.
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockCache is an in-memory stand-in for the Redis lock store.
// Expirations are tracked against an injectable clock.
type MockCache struct {
	data    map[string]string
	expires map[string]time.Time
	mu      sync.RWMutex

	// Now defaults to time.Now.
	Now func() time.Time
	// SetNXErr, when set, is returned by every SetNX call.
	SetNXErr error

	SetNXCalls   int
	ReleaseCalls int
}

// NewMockCache creates a new mock cache instance
func NewMockCache() *MockCache {
	return &MockCache{
		data:    make(map[string]string),
		expires: make(map[string]time.Time),
		Now:     time.Now,
	}
}

func (m *MockCache) expireLocked(key string) {
	if at, ok := m.expires[key]; ok && !m.Now().Before(at) {
		delete(m.data, key)
		delete(m.expires, key)
	}
}

// SetNX sets key only if it does not exist.
func (m *MockCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetNXCalls++
	if m.SetNXErr != nil {
		return false, m.SetNXErr
	}

	m.expireLocked(key)
	if _, exists := m.data[key]; exists {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	if expiration > 0 {
		m.expires[key] = m.Now().Add(expiration)
	}
	return true, nil
}

// ReleaseIfOwner deletes key only if it holds token.
func (m *MockCache) ReleaseIfOwner(ctx context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReleaseCalls++
	m.expireLocked(key)
	if m.data[key] != token {
		return false, nil
	}
	delete(m.data, key)
	delete(m.expires, key)
	return true, nil
}
