package legs

import "sync"

// keyedLocks serializes work per key (a device or a user) across concurrent runs
type keyedLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock blocks until key is free and returns the unlock function
func (k *keyedLocks) Lock(key int64) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// one writer per device's legs and per user's filtered stream, shared by all analyzer instances
var (
	deviceLocks = newKeyedLocks()
	userLocks   = newKeyedLocks()
)
