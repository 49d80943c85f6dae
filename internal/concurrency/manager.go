// Package concurrency provides keyed single-flight guards.
package concurrency

import "sync"

// Common guard keys.
const (
	KeyRefreshIssues = "refresh:issues"
	KeyRefreshTags   = "refresh:tags"
)

// Manager hands out one non-blocking lock per key.
type Manager struct {
	locks sync.Map // map[string]chan struct{}
}

// NewManager creates a new concurrency manager
func NewManager() *Manager {
	return &Manager{}
}

// TryAcquire takes the lock for key and reports whether it succeeded. It
// never blocks.
func (m *Manager) TryAcquire(key string) bool {
	actual, _ := m.locks.LoadOrStore(key, make(chan struct{}, 1))
	ch := actual.(chan struct{})

	select {
	case ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock for key. Releasing an unheld key is a no-op.
func (m *Manager) Release(key string) {
	if actual, ok := m.locks.Load(key); ok {
		ch := actual.(chan struct{})
		select {
		case <-ch:
		default:
		}
	}
}

// Held reports whether key is currently locked.
func (m *Manager) Held(key string) bool {
	actual, ok := m.locks.Load(key)
	if !ok {
		return false
	}
	return len(actual.(chan struct{})) > 0
}

// Run calls fn while holding key. It returns false without calling fn when
// the key is already held.
func (m *Manager) Run(key string, fn func()) bool {
	if !m.TryAcquire(key) {
		return false
	}
	defer m.Release(key)
	fn()
	return true
}
