package mocks

import (
	"context"
	"sync"
)

// MockLocker is a UserLocker double that records lock traffic.
type MockLocker struct {
	// LockErr, when set, is returned instead of taking the lock.
	LockErr error

	mu       sync.Mutex
	Locked   []uint
	Unlocked []uint
}

// LockUser records the call, failing with LockErr when set.
func (m *MockLocker) LockUser(ctx context.Context, userID uint) (func(), error) {
	if m.LockErr != nil {
		return nil, m.LockErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.Locked = append(m.Locked, userID)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		m.Unlocked = append(m.Unlocked, userID)
		m.mu.Unlock()
	}, nil
}

// Balanced reports whether every lock was released.
func (m *MockLocker) Balanced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Locked) == len(m.Unlocked)
}
