package poller

import "sync"

// feedLocks hands out one mutex per (tenant, feed) pair so that overlapping
// cycles wait for each other instead of double-delivering.
type feedLocks struct {
	mu    sync.Mutex
	locks map[feedKey]*sync.Mutex
}

type feedKey struct {
	tenantID string
	url      string
}

func newFeedLocks() *feedLocks {
	return &feedLocks{locks: make(map[feedKey]*sync.Mutex)}
}

// Lock blocks until the pair is free and returns its unlock func.
func (l *feedLocks) Lock(tenantID, url string) func() {
	key := feedKey{tenantID, url}

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
