package engine

import "sync"

// clientLocks serializes all engine work for a single client: a turn,
// an operator reset, and the TTL sweep are mutually exclusive for the
// same client while different clients proceed concurrently. The map
// only grows; one mutex per client ever seen is cheap at this scale.
type clientLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newClientLocks() *clientLocks {
	return &clientLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the client's lock and returns the unlock function.
func (c *clientLocks) Lock(clientID int64) func() {
	c.mu.Lock()
	l, ok := c.locks[clientID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[clientID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}
