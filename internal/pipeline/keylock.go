package pipeline

import "sync"

// keyLocks grants at most one in-flight transition per (domain, key).
// Acquisition never waits: a held key reports false immediately.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{held: make(map[string]struct{})}
}

// tryAcquire returns a release func when the key was free
func (l *keyLocks) tryAcquire(id string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[id]; busy {
		return nil, false
	}
	l.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, true
}

// inFlight returns the number of keys currently held
func (l *keyLocks) inFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
