// ABOUTME: Per-username mutual exclusion for ceremony operations
// ABOUTME: Reference-counted keyed mutexes so the lock table does not grow unbounded

package ceremony

import "sync"

type userLock struct {
	mu   sync.Mutex
	refs int
}

// userLocks serializes all operations touching one username. Locks are
// created on demand and dropped once no operation holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// lock acquires the mutex for username and returns the matching unlock func.
func (l *userLocks) lock(username string) func() {
	l.mu.Lock()
	entry, ok := l.locks[username]
	if !ok {
		entry = &userLock{}
		l.locks[username] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, username)
		}
		l.mu.Unlock()
	}
}
