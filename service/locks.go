package service

import "sync"

// keyedLocks serializes reconciliations per status id. Entries are
// refcounted and removed on release so the map stays bounded by the
// number of statuses being edited concurrently.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{
		locks: make(map[string]*keyedLock),
	}
}

func (kl *keyedLocks) Lock(id string) (unlock func()) {
	kl.mu.Lock()
	l := kl.locks[id]
	if l == nil {
		l = &keyedLock{}
		kl.locks[id] = l
	}
	l.refs++
	kl.mu.Unlock()
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		kl.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(kl.locks, id)
		}
		kl.mu.Unlock()
	}
}
