package keylock

import "sync"

// KeyLock provides a mutex per string key. The progress tracker uses it to
// serialize all state mutation for one player while letting different
// players proceed in parallel.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// New creates a KeyLock.
func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key, creating it on first use.
func (kl *KeyLock) Lock(key string) {
	kl.mu.Lock()
	e, ok := kl.locks[key]
	if !ok {
		e = &lockEntry{}
		kl.locks[key] = e
	}
	e.refs++
	kl.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key. Entries with no waiters are removed
// so the map stays bounded by the number of concurrently active keys.
func (kl *KeyLock) Unlock(key string) {
	kl.mu.Lock()
	e, ok := kl.locks[key]
	if ok {
		e.refs--
		if e.refs == 0 {
			delete(kl.locks, key)
		}
	}
	kl.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}
