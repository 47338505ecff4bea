package engine

import "sync"

// userLocks hands out one mutex per user ID. Holding a user's lock across
// validate-to-commit is what prevents two concurrent orders from both
// validating against the same stale funds or holdings snapshot. Locks are
// never released from the map; the set of active users is small.
type userLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func (l *userLocks) forUser(userID uint) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locks == nil {
		l.locks = make(map[uint]*sync.Mutex)
	}
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	return m
}
