package fleet

import "sync"

// keyedMutex serialises transitions per instance id while letting different
// instances proceed in parallel. Entries are never freed; the key space is
// bounded by max_instances.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int]*sync.Mutex)}
}

// Lock acquires the lock for id and returns its release func.
func (k *keyedMutex) Lock(id int) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
