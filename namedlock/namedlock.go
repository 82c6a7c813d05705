// Package namedlock serializes operations that share a string key. Segment
// allocation locks on the physical network, DHCP provisioning locks on the
// network id; unrelated keys proceed concurrently.
package namedlock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// LockManager hands out per-key mutexes. Entries are dropped once the last
// holder releases, so the map does not grow with the key space.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *LockManager {
	return &LockManager{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for key and returns the release func.
func (m *LockManager) Lock(key string) func() {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.locks, key)
			}
			m.mu.Unlock()
		})
	}
}
