package usecase

import "sync"

// keyedMutex serializes everything that touches one recipient's read/ack
// state, so a replayed old ack can never interleave with a newer one.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*recipientLock
}

type recipientLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*recipientLock)}
}

// Lock acquires the recipient's lock and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &recipientLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
